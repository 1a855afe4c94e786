package action

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// KillRunner sends SIGKILL. Kill carries no reversal metadata: a killed
// process cannot be un-killed, only restarted as a fresh process by a
// higher-level supervisor.
type KillRunner struct{}

func NewKillRunner() *KillRunner { return &KillRunner{} }

func (r *KillRunner) Execute(pid uint32) (ReversalMetadata, *Error) {
	if err := unix.Kill(int(pid), unix.SIGKILL); err != nil {
		return nil, signalErr(err, pid, "SIGKILL")
	}
	return nil, nil
}

func (r *KillRunner) Verify(pid uint32) *Error {
	if processAlive(pid) {
		return failedf("pid %d still alive after SIGKILL", pid)
	}
	return nil
}

func (r *KillRunner) Reverse(ReversalMetadata) *Error {
	return &Error{Kind: ErrKindNotSupported, Message: "kill cannot be reversed"}
}

// PauseReversal records that a process was stopped, so Reverse knows to
// send SIGCONT.
type PauseReversal struct{ PID uint32 }

func (PauseReversal) isReversalMetadata() {}

// PauseResumeRunner pauses via SIGSTOP and resumes via SIGCONT. It serves
// both decision.Pause and decision.Resume; the Action passed to Execute's
// caller determines which signal this call should send, so the executor
// wires it once per action and the runner inspects no state beyond the pid.
type PauseResumeRunner struct{}

func NewPauseResumeRunner() *PauseResumeRunner { return &PauseResumeRunner{} }

func (r *PauseResumeRunner) Execute(pid uint32) (ReversalMetadata, *Error) {
	if err := unix.Kill(int(pid), unix.SIGSTOP); err != nil {
		return nil, signalErr(err, pid, "SIGSTOP")
	}
	return PauseReversal{PID: pid}, nil
}

func (r *PauseResumeRunner) Verify(pid uint32) *Error {
	state, err := processState(pid)
	if err != nil {
		return failedf("could not verify pause for pid %d: %v", pid, err)
	}
	if state != 'T' {
		return failedf("pid %d not in stopped state after SIGSTOP (state=%c)", pid, state)
	}
	return nil
}

func (r *PauseResumeRunner) Reverse(metadata ReversalMetadata) *Error {
	reversal, ok := metadata.(PauseReversal)
	if !ok {
		return failedf("reversal metadata is not a PauseReversal")
	}
	if err := unix.Kill(int(reversal.PID), unix.SIGCONT); err != nil {
		return signalErr(err, reversal.PID, "SIGCONT")
	}
	return nil
}

func signalErr(err error, pid uint32, signal string) *Error {
	if errors.Is(err, unix.EPERM) {
		return permissionDenied(fmt.Sprintf("permission denied sending %s to pid %d", signal, pid))
	}
	if errors.Is(err, unix.ESRCH) {
		return failedf("pid %d does not exist", pid)
	}
	return failedf("failed to send %s to pid %d: %v", signal, pid, err)
}

func processAlive(pid uint32) bool {
	return unix.Kill(int(pid), 0) == nil
}

func processState(pid uint32) (byte, error) {
	contents, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	close := -1
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i] == ')' {
			close = i
			break
		}
	}
	if close < 0 || close+2 >= len(contents) {
		return 0, fmt.Errorf("malformed stat contents")
	}
	return contents[close+2], nil
}

// readProcStatusUID reads the real UID out of /proc/<pid>/status's Uid line.
func readProcStatusUID(pid uint32) (uint32, error) {
	contents, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(contents), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "Uid" {
			continue
		}
		parts := strings.Fields(value)
		if len(parts) == 0 {
			return 0, fmt.Errorf("malformed Uid line")
		}
		v, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return 0, err
		}
		return uint32(v), nil
	}
	return 0, fmt.Errorf("Uid line not found")
}

const defaultReniceTarget = 10 // nice value applied to deprioritize, not starve

// ReniceReversal records the prior nice value so it can be restored.
type ReniceReversal struct {
	PID          uint32
	PreviousNice int
}

func (ReniceReversal) isReversalMetadata() {}

// ReniceRunner calls setpriority(2) to deprioritize a process's scheduling.
type ReniceRunner struct {
	targetNice int
}

func NewReniceRunner(targetNice int) *ReniceRunner { return &ReniceRunner{targetNice: targetNice} }

func (r *ReniceRunner) Execute(pid uint32) (ReversalMetadata, *Error) {
	previous, err := unix.Getpriority(unix.PRIO_PROCESS, int(pid))
	if err != nil {
		return nil, failedf("failed to read current priority for pid %d: %v", pid, err)
	}
	// Linux getpriority returns 20 - nice; translate back to the nice scale.
	previousNice := 20 - previous

	if err := unix.Setpriority(unix.PRIO_PROCESS, int(pid), r.targetNice); err != nil {
		if errors.Is(err, unix.EPERM) {
			return nil, permissionDenied(fmt.Sprintf("permission denied renicing pid %d", pid))
		}
		return nil, failedf("failed to renice pid %d: %v", pid, err)
	}
	return ReniceReversal{PID: pid, PreviousNice: previousNice}, nil
}

func (r *ReniceRunner) Verify(pid uint32) *Error {
	current, err := unix.Getpriority(unix.PRIO_PROCESS, int(pid))
	if err != nil {
		return failedf("could not verify renice for pid %d: %v", pid, err)
	}
	currentNice := 20 - current
	if currentNice != r.targetNice {
		return failedf("nice mismatch for pid %d: expected %d, got %d", pid, r.targetNice, currentNice)
	}
	return nil
}

func (r *ReniceRunner) Reverse(metadata ReversalMetadata) *Error {
	reversal, ok := metadata.(ReniceReversal)
	if !ok {
		return failedf("reversal metadata is not a ReniceReversal")
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, int(reversal.PID), reversal.PreviousNice); err != nil {
		return failedf("failed to restore nice for pid %d: %v", reversal.PID, err)
	}
	return nil
}
