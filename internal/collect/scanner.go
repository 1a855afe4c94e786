package collect

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Scanner walks /proc once per tick and emits one Record per readable PID
// down a buffered channel, the same producer/worker-pool shape as the
// teacher's ring-buffer event processor: a single goroutine does the walk,
// callers drain the channel with as many worker goroutines as they like.
type Scanner struct {
	procRoot string
	bootID   string
	clockTk  uint64
	log      *zap.Logger
	queue    chan Record
	queueCap int
}

// NewScanner builds a Scanner rooted at procRoot (normally "/proc").
// clockTicksPerSec is sysconf(_SC_CLK_TCK), almost always 100 on Linux.
func NewScanner(procRoot, bootID string, clockTicksPerSec uint64, log *zap.Logger, queueCap int) *Scanner {
	return &Scanner{
		procRoot: procRoot,
		bootID:   bootID,
		clockTk:  clockTicksPerSec,
		log:      log,
		queue:    make(chan Record, queueCap),
		queueCap: queueCap,
	}
}

// Run performs one full scan, emitting records on the returned channel.
// The channel is closed when the walk completes or ctx is cancelled. A PID
// that can't be read (exited between readdir and open) is skipped, not
// fatal; a malformed record is logged and skipped.
func (s *Scanner) Run(ctx context.Context) (<-chan Record, error) {
	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(s.queue)

		netTable := BuildNetworkTable(s.procRoot)
		now := time.Now()

		for _, entry := range entries {
			select {
			case <-ctx.Done():
				return
			default:
			}

			pid, err := strconv.ParseUint(entry.Name(), 10, 32)
			if err != nil || !entry.IsDir() {
				continue
			}

			record, err := s.scanOne(uint32(pid), netTable, now)
			if err != nil {
				if s.log != nil {
					s.log.Debug("skipping unreadable process", zap.Uint64("pid", pid), zap.Error(err))
				}
				continue
			}

			select {
			case s.queue <- record:
			case <-ctx.Done():
				return
			}
		}
	}()

	return s.queue, nil
}

func (s *Scanner) scanOne(pid uint32, netTable NetworkTable, now time.Time) (Record, error) {
	pidDir := filepath.Join(s.procRoot, strconv.FormatUint(uint64(pid), 10))

	statRaw, err := readFileString(filepath.Join(pidDir, "stat"))
	if err != nil {
		return Record{}, err
	}
	comm, ppid, state, starttime, utime, stime, err := parseStat(statRaw)
	if err != nil {
		return Record{}, err
	}

	statusRaw, err := readFileString(filepath.Join(pidDir, "status"))
	if err != nil {
		return Record{}, err
	}
	status, err := parseStatus(statusRaw)
	if err != nil {
		return Record{}, err
	}

	cgroupRaw, _ := readFileString(filepath.Join(pidDir, "cgroup"))
	cgroup := parseCgroup(cgroupRaw)

	cmdlineRaw, _ := readFileString(filepath.Join(pidDir, "cmdline"))
	cmdline := normalizeCmdline(cmdlineRaw)

	exePath, _ := os.Readlink(filepath.Join(pidDir, "exe"))

	fdCount, inodes, hasTTY := scanFDs(filepath.Join(pidDir, "fd"))
	sockets := make([]SocketSummary, 0, len(inodes))
	for _, inode := range inodes {
		if summary, ok := netTable[inode]; ok {
			sockets = append(sockets, summary)
		}
	}

	environ := readEnviron(s.procRoot, pid)
	container := ResolveContainer(cgroup, environ)
	systemd := ResolveSystemdUnit(pid, cgroup)

	elapsedTicks := now.Unix() // approximate; callers with the real boot time can recompute precisely
	_ = elapsedTicks

	clockTk := s.clockTk
	if clockTk == 0 {
		clockTk = 100
	}

	return Record{
		Identity: Identity{BootID: s.bootID, PID: pid, StartTimeTicks: starttime},
		Comm:     comm, Cmdline: cmdline, ExePath: exePath,
		PPID: ppid, UID: status.UID, State: state,
		CPUTicks: utime + stime, ClockTicks: clockTk,
		RSSBytes:     status.RSSBytes,
		OpenFDCount:  fdCount,
		SocketInodes: inodes,
		Sockets:      sockets,
		HasTTY:       hasTTY,
		Cgroup:       cgroup,
		Container:    container,
		Systemd:      systemd,
		SigBlk:       status.SigBlk, SigIgn: status.SigIgn, SigCgt: status.SigCgt, SigPnd: status.SigPnd,
		ScannedAt: now,
	}, nil
}

// normalizeCmdline joins the NUL-separated argv vector from /proc/<pid>/cmdline
// with spaces; a kernel thread or zombie has an empty cmdline.
func normalizeCmdline(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0 {
			if i != len(raw)-1 {
				out = append(out, ' ')
			}
			continue
		}
		out = append(out, raw[i])
	}
	return string(out)
}

// scanFDs walks /proc/<pid>/fd, counting entries and extracting socket
// inodes from "socket:[N]" readlink targets, plus whether any fd points at
// a tty device.
func scanFDs(fdDir string) (count int, socketInodes []uint64, hasTTY bool) {
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		return 0, nil, false
	}
	for _, entry := range entries {
		count++
		target, err := os.Readlink(filepath.Join(fdDir, entry.Name()))
		if err != nil {
			continue
		}
		if inode, ok := parseSocketInode(target); ok {
			socketInodes = append(socketInodes, inode)
			continue
		}
		if isTTYTarget(target) {
			hasTTY = true
		}
	}
	return count, socketInodes, hasTTY
}

func parseSocketInode(target string) (uint64, bool) {
	const prefix, suffix = "socket:[", "]"
	if len(target) < len(prefix)+len(suffix) {
		return 0, false
	}
	if target[:len(prefix)] != prefix || target[len(target)-1:] != suffix {
		return 0, false
	}
	inode, err := strconv.ParseUint(target[len(prefix):len(target)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}

func isTTYTarget(target string) bool {
	if len(target) >= 8 && target[:8] == "/dev/tty" {
		return true
	}
	return len(target) >= 9 && target[:9] == "/dev/pts/"
}
