// Package supervision answers one question about a PPID=1 process: is it
// *expected* (managed by a supervisor, containerized, or intentionally
// backgrounded) or *unexpected* (truly orphaned and a candidate for
// triage)? The classifier is a pure function of the observed process
// record plus whatever of the process table is visible at collection
// time, so identical inputs always produce identical verdicts.
package supervision

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// SupervisorCategory names the kind of process that supervises another.
type SupervisorCategory int

const (
	SupervisorNone SupervisorCategory = iota
	SupervisorOrchestrator
	SupervisorTerminal
	SupervisorAgent
	SupervisorIDE
	SupervisorCI
)

func (c SupervisorCategory) String() string {
	switch c {
	case SupervisorOrchestrator:
		return "orchestrator"
	case SupervisorTerminal:
		return "terminal"
	case SupervisorAgent:
		return "agent"
	case SupervisorIDE:
		return "ide"
	case SupervisorCI:
		return "ci"
	default:
		return "none"
	}
}

// ReparentingReason explains why a PPID=1 process was classified as
// expected or unexpected.
type ReparentingReason int

const (
	ReasonNotOrphaned ReparentingReason = iota
	ReasonReparentedWithoutSupervision
	ReasonPid1IsSupervisorExpected
	ReasonContainerPid1Expected
	ReasonIntentionallyBackgrounded
	ReasonSupervisedByAutomation
	ReasonLaunchdManaged
	ReasonSystemdManaged
	ReasonTerminalMultiplexerManaged
	ReasonUnknown
)

func (r ReparentingReason) String() string {
	switch r {
	case ReasonNotOrphaned:
		return "not_orphaned"
	case ReasonReparentedWithoutSupervision:
		return "reparented_to_init_without_supervision"
	case ReasonPid1IsSupervisorExpected:
		return "pid1_is_supervisor_expected"
	case ReasonContainerPid1Expected:
		return "container_pid1_expected"
	case ReasonIntentionallyBackgrounded:
		return "intentionally_backgrounded"
	case ReasonSupervisedByAutomation:
		return "supervised_by_automation"
	case ReasonLaunchdManaged:
		return "launchd_managed"
	case ReasonSystemdManaged:
		return "systemd_managed"
	case ReasonTerminalMultiplexerManaged:
		return "terminal_multiplexer_managed"
	default:
		return "unknown"
	}
}

// BackgroundIntent is the inferred reason a process was backgrounded.
type BackgroundIntent int

const (
	IntentUnknown BackgroundIntent = iota
	IntentIntentional
	IntentForgotten
)

// NohupOutputActivity is the recency of a nohup.out file's last write.
type NohupOutputActivity int

const (
	NohupOutputAbsent NohupOutputActivity = iota
	NohupOutputActive
	NohupOutputStale
)

const sighupMask uint64 = 1 << 0 // bit 0 of the signal mask is SIGHUP (signal 1)

const staleThreshold = 10 * time.Minute

// SignalMask is the set of 64-bit signal bitmasks /proc/<pid>/status reports.
type SignalMask struct {
	Blocked uint64
	Ignored uint64
	Caught  uint64
	Pending uint64
}

// IgnoresSIGHUP reports whether SIGHUP is in the ignored mask.
func (m SignalMask) IgnoresSIGHUP() bool { return m.Ignored&sighupMask != 0 }

// CatchesSIGHUP reports whether SIGHUP has an installed handler.
func (m SignalMask) CatchesSIGHUP() bool { return m.Caught&sighupMask != 0 }

// ParseSignalMask reads the SigBlk/SigIgn/SigCgt/SigPnd lines out of a
// /proc/<pid>/status file's contents.
func ParseSignalMask(status string) (SignalMask, error) {
	var mask SignalMask
	for _, line := range strings.Split(status, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var target *uint64
		switch key {
		case "SigBlk":
			target = &mask.Blocked
		case "SigIgn":
			target = &mask.Ignored
		case "SigCgt":
			target = &mask.Caught
		case "SigPnd":
			target = &mask.Pending
		default:
			continue
		}
		parsed, err := strconv.ParseUint(value, 16, 64)
		if err != nil {
			return mask, fmt.Errorf("invalid hex signal mask %q for %s: %w", value, key, err)
		}
		*target = parsed
	}
	return mask, nil
}

// NohupEvidence is one piece of supporting evidence for a nohup/disown
// intent classification.
type NohupEvidence struct {
	Description string
}

// NohupResult is the outcome of background/nohup detection for one PID.
type NohupResult struct {
	IsBackground         bool
	IgnoresSIGHUP        bool
	HasNohupCmd          bool
	HasNohupOutput       bool
	NohupOutputActivity  NohupOutputActivity
	Evidence             []NohupEvidence
	Confidence           float64
	InferredIntent       BackgroundIntent
}

// DetectNohup inspects a process's command line, open files, and signal
// mask to decide whether it was deliberately backgrounded via nohup or
// shell disown, and whether that backgrounding looks intentional or
// forgotten (an abandoned nohup.out that hasn't been touched in a while).
func DetectNohup(pid uint32, cmdline string, mask SignalMask, nohupOutPath string) NohupResult {
	result := NohupResult{IgnoresSIGHUP: mask.IgnoresSIGHUP()}

	if strings.Contains(cmdline, "nohup") {
		result.HasNohupCmd = true
		result.IsBackground = true
		result.Evidence = append(result.Evidence, NohupEvidence{Description: "command line contains nohup"})
	}

	if nohupOutPath != "" {
		info, err := os.Stat(nohupOutPath)
		if err == nil {
			result.HasNohupOutput = true
			result.IsBackground = true
			result.Evidence = append(result.Evidence, NohupEvidence{Description: "nohup.out present"})
			if time.Since(info.ModTime()) < staleThreshold {
				result.NohupOutputActivity = NohupOutputActive
			} else {
				result.NohupOutputActivity = NohupOutputStale
			}
		} else {
			result.NohupOutputActivity = NohupOutputAbsent
		}
	}

	if !result.IsBackground {
		result.InferredIntent = IntentUnknown
		return result
	}

	switch result.NohupOutputActivity {
	case NohupOutputActive:
		result.InferredIntent = IntentIntentional
		result.Confidence = 0.8
	case NohupOutputStale:
		result.InferredIntent = IntentForgotten
		result.Confidence = 0.7
	default:
		if result.IgnoresSIGHUP {
			result.InferredIntent = IntentIntentional
			result.Confidence = 0.6
		} else {
			result.InferredIntent = IntentUnknown
			result.Confidence = 0.4
		}
	}

	return result
}

// knownInitComms lists PID-1 commands that indicate a normal (non-container)
// init system, as opposed to a container entrypoint.
var knownInitComms = map[string]bool{
	"init": true, "systemd": true, "launchd": true, "upstart": true, "runit": true, "s6-svscan": true,
}

// DetectContainer reports whether the current host is running inside a
// container, by /.dockerenv, PID-1's cgroup membership, or PID-1 not being
// a recognized init system.
func DetectContainer(dockerenvPath, pid1CgroupContent, pid1Comm string) bool {
	if dockerenvPath != "" {
		if _, err := os.Stat(dockerenvPath); err == nil {
			return true
		}
	}
	for _, pattern := range []string{"/docker/", "/kubepods/", "/lxc/", "/containerd/"} {
		if strings.Contains(pid1CgroupContent, pattern) {
			return true
		}
	}
	comm := strings.TrimSpace(pid1Comm)
	if comm != "" && !knownInitComms[comm] {
		return true
	}
	return false
}

// ParentWalkEntry is one hop of the ancestor-PID chain used to detect
// supervision; callers (internal/collect) supply these from the live
// process table so the classifier stays a pure function of its inputs.
type ParentWalkEntry struct {
	PID  uint32
	Comm string
}

const maxSupervisionWalkDepth = 8

var (
	terminalMuxComms = map[string]bool{"tmux": true, "tmux: server": true, "screen": true}
	agentComms       = map[string]bool{"claude": true, "aider": true, "cursor-agent": true}
	ideComms         = map[string]bool{"code": true, "code-server": true, "idea": true, "goland": true}
	ciComms          = map[string]bool{"github-actions-runner": true, "gitlab-runner": true, "buildkite-agent": true, "jenkins": true}
)

// SupervisionResult describes what, if anything, supervises a process.
type SupervisionResult struct {
	IsSupervised bool
	Category     SupervisorCategory
	Name         string
	Confidence   float64
}

// NotSupervised returns the zero-evidence "no supervisor found" result.
func NotSupervised() SupervisionResult {
	return SupervisionResult{}
}

// DetectSupervision walks the ancestor chain (closest first, PID 1 last or
// absent) looking for a systemd scope/service, launchd, a terminal
// multiplexer session, or an editor/IDE/CI/agent parent, stopping at
// maxSupervisionWalkDepth hops.
func DetectSupervision(chain []ParentWalkEntry) SupervisionResult {
	for i, entry := range chain {
		if i >= maxSupervisionWalkDepth {
			break
		}
		comm := strings.ToLower(strings.TrimSpace(entry.Comm))
		switch {
		case strings.Contains(comm, "systemd"):
			return SupervisionResult{IsSupervised: true, Category: SupervisorOrchestrator, Name: "systemd", Confidence: 0.95}
		case strings.Contains(comm, "launchd"):
			return SupervisionResult{IsSupervised: true, Category: SupervisorOrchestrator, Name: "launchd", Confidence: 0.95}
		case terminalMuxComms[comm]:
			return SupervisionResult{IsSupervised: true, Category: SupervisorTerminal, Name: comm, Confidence: 0.85}
		case agentComms[comm]:
			return SupervisionResult{IsSupervised: true, Category: SupervisorAgent, Name: comm, Confidence: 0.75}
		case ideComms[comm]:
			return SupervisionResult{IsSupervised: true, Category: SupervisorIDE, Name: comm, Confidence: 0.75}
		case ciComms[comm]:
			return SupervisionResult{IsSupervised: true, Category: SupervisorCI, Name: comm, Confidence: 0.8}
		}
	}
	return NotSupervised()
}

// SystemdUnitName runs `systemctl show --property=Id --pid=<pid>` and
// returns ("", false) if systemctl is unavailable or reports no unit, so
// callers can attribute a supervised process to a specific unit.
func SystemdUnitName(pid uint32) (string, bool) {
	out, err := exec.Command("systemctl", "show", "--property=Id", fmt.Sprintf("--pid=%d", pid)).Output()
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(string(out))
	unit := strings.TrimPrefix(line, "Id=")
	if unit == "" {
		return "", false
	}
	return unit, true
}

// ContainerRemediation describes how a containerized process should be
// handled instead of (or in addition to) a direct signal.
type ContainerRemediation struct {
	InContainer        bool
	PreferRuntimeKill   bool
	PreferRuntimeRestart bool
	Explanation        string
}

// ClassifyContainerRemediation reports, for a process confirmed to be
// running in a container, whether Kill/Restart should prefer the
// container runtime's own mechanisms over a raw signal: a Kill remains
// feasible (the container's restart policy will likely respawn it, which
// is useful information for the decision rationale) but a Restart should
// defer to the orchestrator rather than raw process restart, since the
// container runtime already owns that lifecycle.
func ClassifyContainerRemediation(inContainer bool) ContainerRemediation {
	if !inContainer {
		return ContainerRemediation{}
	}
	return ContainerRemediation{
		InContainer:          true,
		PreferRuntimeKill:    true,
		PreferRuntimeRestart: true,
		Explanation:          "process is container-supervised; prefer the container runtime's stop/restart over a raw signal",
	}
}

// Record is the subset of a collected process record the classifier
// needs: PPID, raw cmdline, signal mask, nohup.out path if any, and the
// ancestor chain for supervision walking.
type Record struct {
	PID          uint32
	PPID         uint32
	Cmdline      string
	SignalMask   SignalMask
	NohupOutPath string
	ParentChain  []ParentWalkEntry
	InContainer  bool
	DockerenvPath       string
	PID1CgroupContent   string
	PID1Comm            string
}

// Verdict is the supervision classifier's output for one process.
type Verdict struct {
	IsSupervised          bool
	SupervisorCategory    SupervisorCategory
	SupervisorName        string
	Confidence            float64
	Reason                ReparentingReason
	UnexpectedReparenting bool
	Evidence              []string
	ContainerRemediation  ContainerRemediation
}

// Classify runs the full PPID=1 decision order described by the spec:
// 1. PPID != 1 is never orphaned.
// 2. Container context (any signal) makes PPID=1 expected.
// 3. A detected supervisor (systemd/launchd/terminal mux/agent/IDE/CI) makes it expected.
// 4. Nohup/disown intent: Intentional -> expected, Forgotten -> unexpected, else fall through.
// 5. On Darwin, PPID=1 is launchd and is expected at confidence 0.7.
// 6. Otherwise: unexpected reparenting to init without supervision.
func Classify(rec Record) Verdict {
	if rec.PPID != 1 {
		return Verdict{
			IsSupervised:          false,
			Reason:                ReasonNotOrphaned,
			UnexpectedReparenting: false,
			Confidence:            1.0,
			Evidence:              []string{fmt.Sprintf("parent pid %d is not init", rec.PPID)},
		}
	}

	inContainer := rec.InContainer || DetectContainer(rec.DockerenvPath, rec.PID1CgroupContent, rec.PID1Comm)
	if inContainer {
		return Verdict{
			IsSupervised:          false,
			Reason:                ReasonContainerPid1Expected,
			UnexpectedReparenting: false,
			Confidence:            0.9,
			Evidence:              []string{"running in container, PPID=1 is expected"},
			ContainerRemediation:  ClassifyContainerRemediation(true),
		}
	}

	if supervision := DetectSupervision(rec.ParentChain); supervision.IsSupervised {
		reason := ReasonSupervisedByAutomation
		switch {
		case supervision.Category == SupervisorOrchestrator && supervision.Name == "systemd":
			reason = ReasonSystemdManaged
		case supervision.Category == SupervisorOrchestrator && supervision.Name == "launchd":
			reason = ReasonLaunchdManaged
		case supervision.Category == SupervisorOrchestrator:
			reason = ReasonPid1IsSupervisorExpected
		case supervision.Category == SupervisorTerminal:
			reason = ReasonTerminalMultiplexerManaged
		}
		return Verdict{
			IsSupervised:          true,
			SupervisorCategory:    supervision.Category,
			SupervisorName:        supervision.Name,
			Confidence:            supervision.Confidence,
			Reason:                reason,
			UnexpectedReparenting: false,
			Evidence:              []string{fmt.Sprintf("supervised by %s (%s)", supervision.Name, supervision.Category)},
		}
	}

	nohup := DetectNohup(rec.PID, rec.Cmdline, rec.SignalMask, rec.NohupOutPath)
	if nohup.IsBackground {
		switch nohup.InferredIntent {
		case IntentIntentional:
			return Verdict{
				IsSupervised:          false,
				Reason:                ReasonIntentionallyBackgrounded,
				UnexpectedReparenting: false,
				Confidence:            nohup.Confidence,
				Evidence:              []string{"intentional nohup/disown backgrounding"},
			}
		case IntentForgotten:
			return Verdict{
				IsSupervised:          false,
				Reason:                ReasonReparentedWithoutSupervision,
				UnexpectedReparenting: true,
				Confidence:            nohup.Confidence,
				Evidence:              []string{"stale nohup.out suggests forgotten background process"},
			}
		}
	}

	if runtime.GOOS == "darwin" {
		return Verdict{
			IsSupervised:          false,
			Reason:                ReasonLaunchdManaged,
			UnexpectedReparenting: false,
			Confidence:            0.7,
			Evidence:              []string{"darwin PPID=1 is launchd"},
		}
	}

	return Verdict{
		IsSupervised:          false,
		Reason:                ReasonReparentedWithoutSupervision,
		UnexpectedReparenting: true,
		Confidence:            0.8,
		Evidence:              []string{"reparented to init with no detected supervision or intentional backgrounding"},
	}
}

// HasKnownSupervisor reports whether a verdict found a concrete supervisor
// (systemd unit, container runtime, launchd) suitable for a Restart
// recommendation to defer to, per the decision engine's feasibility mask:
// a Restart with no detected supervisor is infeasible, not merely
// low-priority.
func (v Verdict) HasKnownSupervisor() bool {
	return v.IsSupervised || v.ContainerRemediation.InContainer || v.Reason == ReasonLaunchdManaged
}

// cgroupUnitSegment extracts a systemd unit name from a cgroup path's
// trailing ".service"/".scope" segment, the fallback when systemctl itself
// isn't reachable (e.g. inside a minimal container).
func cgroupUnitSegment(cgroupPath string) (string, bool) {
	base := filepath.Base(cgroupPath)
	if strings.HasSuffix(base, ".service") || strings.HasSuffix(base, ".scope") {
		return base, true
	}
	return "", false
}

func trimNullBytes(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}
