package orchestrator

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/processtriage/pttriage/internal/collect"
	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/supervision"
)

// maxAncestorWalk bounds how many parent hops buildAncestorChain follows
// before giving up, matching supervision's own walk-depth ceiling.
const maxAncestorWalk = 8

// buildAncestorChain walks /proc/<pid>/stat's PPID field up toward PID 1,
// closest ancestor first, to feed supervision.DetectSupervision. It is the
// live-process-table source supervision.ParentWalkEntry documents as the
// caller's responsibility.
func buildAncestorChain(procRoot string, ppid uint32) []supervision.ParentWalkEntry {
	var chain []supervision.ParentWalkEntry
	pid := ppid
	for i := 0; i < maxAncestorWalk && pid != 0; i++ {
		comm, nextPPID, ok := readCommAndPPID(procRoot, pid)
		if !ok {
			break
		}
		chain = append(chain, supervision.ParentWalkEntry{PID: pid, Comm: comm})
		if pid == 1 {
			break
		}
		pid = nextPPID
	}
	return chain
}

// readCommAndPPID reads the comm and ppid fields of /proc/<pid>/stat,
// tolerating the parenthesised command containing spaces the same way the
// scanner's stat parser does.
func readCommAndPPID(procRoot string, pid uint32) (comm string, ppid uint32, ok bool) {
	raw, err := os.ReadFile(filepath.Join(procRoot, strconv.FormatUint(uint64(pid), 10), "stat"))
	if err != nil {
		return "", 0, false
	}
	open := strings.IndexByte(string(raw), '(')
	close := strings.LastIndexByte(string(raw), ')')
	if open < 0 || close < 0 || close <= open {
		return "", 0, false
	}
	comm = string(raw)[open+1 : close]
	fields := strings.Fields(string(raw)[close+1:])
	if len(fields) < 2 {
		return "", 0, false
	}
	ppidVal, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return comm, uint32(ppidVal), true
}

// classifySupervision runs the PPID=1 orphan classifier for one scanned
// record, walking the live ancestor chain when needed.
func classifySupervision(procRoot string, rec collect.Record) supervision.Verdict {
	sigMask := supervision.SignalMask{Ignored: rec.SigIgn, Caught: rec.SigCgt}

	var chain []supervision.ParentWalkEntry
	if rec.PPID == 1 {
		chain = buildAncestorChain(procRoot, rec.PPID)
	}

	var dockerenv, pid1Cgroup, pid1Comm string
	if rec.PPID == 1 {
		if _, err := os.Stat(filepath.Join(procRoot, "1", "root", ".dockerenv")); err == nil {
			dockerenv = "/.dockerenv"
		}
		if raw, err := os.ReadFile(filepath.Join(procRoot, "1", "cgroup")); err == nil {
			pid1Cgroup = string(raw)
		}
		if comm, _, ok := readCommAndPPID(procRoot, 1); ok {
			pid1Comm = comm
		}
	}

	return supervision.Classify(supervision.Record{
		PID:               rec.Identity.PID,
		PPID:              rec.PPID,
		Cmdline:           rec.Cmdline,
		SignalMask:        sigMask,
		ParentChain:       chain,
		InContainer:       rec.InContainer(),
		DockerenvPath:     dockerenv,
		PID1CgroupContent: pid1Cgroup,
		PID1Comm:          pid1Comm,
	})
}

// systemUptimeSeconds reads /proc/uptime's first field: seconds since boot.
func systemUptimeSeconds(procRoot string) (float64, bool) {
	raw, err := os.ReadFile(filepath.Join(procRoot, "uptime"))
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// processAgeSeconds derives how long a process has been running from its
// /proc/stat start-time (in clock ticks since boot) and the current system
// uptime, the same quantity `ps -o etimes` reports. Returns false if uptime
// can't be read.
func processAgeSeconds(procRoot string, rec collect.Record) (float64, bool) {
	uptime, ok := systemUptimeSeconds(procRoot)
	if !ok {
		return 0, false
	}
	clockTk := rec.ClockTicks
	if clockTk == 0 {
		clockTk = 100
	}
	startSeconds := float64(rec.Identity.StartTimeTicks) / float64(clockTk)
	age := uptime - startSeconds
	if age < 0 {
		age = 0
	}
	return age, true
}

// buildEvidence maps one scanned process record plus its supervision
// verdict onto the inference package's per-feature Evidence bundle.
// Categorical state/command-category indices are left unset: the default
// priors document configures no Dirichlet prior for them, so guessing an
// index would bias the posterior without contributing real evidence.
func buildEvidence(rec collect.Record, verdict supervision.Verdict, procRoot string) *inference.Evidence {
	ev := &inference.Evidence{}

	clockTk := rec.ClockTicks
	if clockTk == 0 {
		clockTk = 100
	}

	if age, ok := processAgeSeconds(procRoot, rec); ok && age > 0 {
		occupancy := float64(rec.CPUTicks) / float64(clockTk) / age
		if occupancy > 1 {
			occupancy = 1
		}
		if occupancy < 0 {
			occupancy = 0
		}
		ev.CPU = &inference.CPUEvidence{Occupancy: &occupancy}

		runtimeSeconds := age
		ev.RuntimeSeconds = &runtimeSeconds
	}

	orphan := verdict.UnexpectedReparenting
	ev.Orphan = &orphan

	tty := rec.HasTTY
	ev.TTY = &tty

	net := len(rec.Sockets) > 0
	ev.Net = &net

	ioActive := rec.OpenFDCount > 3
	ev.IOActive = &ioActive

	return ev
}
