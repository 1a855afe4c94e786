package action

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/processtriage/pttriage/internal/supervision"
)

// RestartRunner restarts a process by asking its supervisor to do so,
// never by signaling the process directly — the whole point of gating
// Restart on a detected supervisor (internal/orchestrator's feasibility
// mask) is that something else owns respawning it. A systemd unit is
// restarted with `systemctl restart <unit>`; a container-supervised
// process has no restart performed here at all, since the container
// runtime's own restart policy already owns that lifecycle and a second,
// independent restart trigger would race it (see
// supervision.ClassifyContainerRemediation's PreferRuntimeRestart rule).
type RestartRunner struct{}

func NewRestartRunner() *RestartRunner { return &RestartRunner{} }

func (r *RestartRunner) Execute(pid uint32) (ReversalMetadata, *Error) {
	if inContainer(pid) {
		return nil, &Error{
			Kind:    ErrKindNotSupported,
			Message: fmt.Sprintf("pid %d is container-supervised; its runtime's own restart policy applies", pid),
		}
	}

	unit, ok := supervision.SystemdUnitName(pid)
	if !ok {
		return nil, &Error{
			Kind:    ErrKindNotSupported,
			Message: fmt.Sprintf("no systemd unit found for pid %d; cannot restart without a known supervisor", pid),
		}
	}

	out, err := exec.Command("systemctl", "restart", unit).CombinedOutput()
	if err != nil {
		return nil, failedf("systemctl restart %s failed: %v (%s)", unit, err, string(out))
	}
	return nil, nil
}

// Verify only confirms the unit is active again; it does not attempt to
// identify the new PID systemd assigned the respawned process — that's a
// distinct entity from the one Restart was invoked against.
func (r *RestartRunner) Verify(pid uint32) *Error {
	unit, ok := supervision.SystemdUnitName(pid)
	if !ok {
		// The original pid is gone (replaced by systemd's restart) and
		// carried no unit with it at this call site; nothing further to
		// check beyond Execute's own success.
		return nil
	}
	out, err := exec.Command("systemctl", "is-active", unit).Output()
	if err != nil && len(out) == 0 {
		return failedf("systemctl is-active %s failed: %v", unit, err)
	}
	if strings.TrimSpace(string(out)) != "active" {
		return failedf("unit %s not active after restart (state=%s)", unit, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *RestartRunner) Reverse(ReversalMetadata) *Error {
	return &Error{Kind: ErrKindNotSupported, Message: "restart cannot be reversed"}
}

// inContainer reports whether pid's cgroup membership carries a
// container-runtime marker, using the same docker/kubepods/lxc/containerd
// vocabulary supervision.DetectContainer checks at the host level. A
// best-effort heuristic, not a full supervision classification — it only
// needs to decide whether RestartRunner should defer, not attribute which
// runtime.
func inContainer(pid uint32) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return false
	}
	content := string(data)
	for _, marker := range []string{"/docker/", "/kubepods/", "/lxc/", "/containerd/"} {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
