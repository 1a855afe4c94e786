// Package collect scrapes /proc into one process record per live PID,
// resolves cgroup/container/systemd/network context, and feeds the result
// down a worker-pool channel for the inference stage to consume. It never
// blocks on a single slow PID scrape: the directory walk and per-PID parse
// both run under the caller's context and a record that can't be read
// (process exited mid-scan) is skipped, not failed.
package collect

import "time"

// ProcessState is the single-letter /proc state code.
type ProcessState byte

const (
	StateRunning      ProcessState = 'R'
	StateSleeping     ProcessState = 'S'
	StateDiskSleep    ProcessState = 'D'
	StateZombie       ProcessState = 'Z'
	StateStopped      ProcessState = 'T'
	StateIdle         ProcessState = 'I'
	StateDead         ProcessState = 'X'
	StateStateUnknown ProcessState = '?'
)

// Identity is the (boot_id, pid, start_time_ticks) triple that uniquely
// names a process across reboots and PID reuse within a boot.
type Identity struct {
	BootID         string
	PID            uint32
	StartTimeTicks uint64
}

// KubernetesInfo is container metadata specific to a Kubernetes-managed pod.
type KubernetesInfo struct {
	PodUID       string
	Namespace    string
	QoSClass     string // Burstable | BestEffort | Guaranteed
	ContainerID  string
}

// ContainerInfo is the runtime context a process's cgroup path (or host
// environment, for PID 1) resolves to.
type ContainerInfo struct {
	Runtime         string // docker | containerd | podman | lxc | kubepods
	ContainerID     string // 12-64 hex chars
	ContainerIDShort string
	Kubernetes      *KubernetesInfo
}

// SystemdInfo records which unit supervises a process and how that was
// discovered, since systemctl and cgroup-path inference aren't always both
// available.
type SystemdInfo struct {
	Unit   string
	Source string // systemctl | cgroup_path
}

// SocketSummary is the decoded /proc/net/* row a socket inode maps to.
type SocketSummary struct {
	Inode      uint64
	Protocol   string // tcp | tcp6 | udp | udp6 | unix
	LocalAddr  string
	LocalPort  uint16
	RemoteAddr string
	RemotePort uint16
	State      string
}

// CgroupPaths holds both the v2 unified hierarchy path and any v1
// per-controller paths a process belongs to.
type CgroupPaths struct {
	Unified     string
	Controllers map[string]string
}

// Record is one scan's worth of observed state for a single process. It is
// immutable once produced; a new scan mints a new Record even for the same
// PID.
type Record struct {
	Identity Identity

	Comm       string
	Cmdline    string
	ExePath    string
	PPID       uint32
	UID        uint32
	State      ProcessState
	ElapsedSec float64
	CPUTicks   uint64
	ClockTicks uint64 // sysconf(_SC_CLK_TCK), needed to convert ticks to seconds
	RSSBytes   uint64

	OpenFDCount  int
	SocketInodes []uint64
	Sockets      []SocketSummary
	HasTTY       bool

	Cgroup    CgroupPaths
	Container *ContainerInfo
	Systemd   *SystemdInfo

	SigBlk uint64
	SigIgn uint64
	SigCgt uint64
	SigPnd uint64

	ScannedAt time.Time
}

// IgnoresSIGHUP reports whether bit 0 (signal 1) of the ignored mask is set.
func (r Record) IgnoresSIGHUP() bool { return r.SigIgn&1 != 0 }

// CatchesSIGHUP reports whether bit 0 of the caught mask is set.
func (r Record) CatchesSIGHUP() bool { return r.SigCgt&1 != 0 }

// InContainer reports whether container context was resolved for this record.
func (r Record) InContainer() bool { return r.Container != nil }
