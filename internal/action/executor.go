// Package action dispatches a decided Action against a live process:
// cgroup CPU throttle with v1/v2 fallback, signal-based kill/pause/resume,
// cgroup freezer freeze/unfreeze, network quarantine, and renice. Every
// runner captures reversal metadata before mutating state and verifies the
// result via readback, mirroring the plan/apply/verify discipline the rest
// of the system uses for every other mutation.
package action

import (
	"fmt"
	"time"

	"github.com/processtriage/pttriage/internal/decision"
)

// Status is where a plan action sits in its lifecycle.
type Status int

const (
	StatusPlanned Status = iota
	StatusExecuting
	StatusVerified
	StatusVerificationFailed
	StatusPermissionDenied
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPlanned:
		return "planned"
	case StatusExecuting:
		return "executing"
	case StatusVerified:
		return "verified"
	case StatusVerificationFailed:
		return "verification_failed"
	case StatusPermissionDenied:
		return "permission_denied"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Error is the error surface every runner returns, distinguishing a
// denied-by-OS failure (permissions) from a generic failure so the
// orchestrator can decide whether a retry at elevated privilege makes
// sense.
type Error struct {
	Kind    ErrorKind
	Message string
}

type ErrorKind int

const (
	ErrKindFailed ErrorKind = iota
	ErrKindPermissionDenied
	ErrKindNotSupported
)

func (e *Error) Error() string { return e.Message }

func failedf(format string, args ...any) *Error {
	return &Error{Kind: ErrKindFailed, Message: fmt.Sprintf(format, args...)}
}

func permissionDenied(message string) *Error {
	return &Error{Kind: ErrKindPermissionDenied, Message: message}
}

// Runner is the interface every per-action executor implements.
type Runner interface {
	// Execute applies the action to pid, returning reversal metadata that
	// Reverse can later consume to undo it (nil if the action carries no
	// reversible state, e.g. Kill).
	Execute(pid uint32) (ReversalMetadata, *Error)
	// Verify re-reads the relevant kernel/cgroup state and confirms the
	// action actually took effect.
	Verify(pid uint32) *Error
	// Reverse undoes a previously executed action using its captured
	// metadata.
	Reverse(metadata ReversalMetadata) *Error
}

// ReversalMetadata is an opaque, runner-specific snapshot of pre-action
// state. Only the runner that produced it knows how to interpret it.
type ReversalMetadata interface {
	isReversalMetadata()
}

// Result is the outcome of dispatching one decided action against one PID.
type Result struct {
	Action     decision.Action
	PID        uint32
	Status     Status
	Reversal   ReversalMetadata
	Err        error
	AppliedAt  time.Time
	VerifiedAt time.Time
}

// Executor dispatches decided actions to the matching Runner and drives
// each through execute -> verify, recording the result for the caller to
// persist and, later, reverse.
//
// Dispatch is an exhaustive switch (runnerFor), not a map lookup: a
// decision.Action with no arm there panics instead of silently returning
// StatusFailed, so adding an action to the decision package without also
// giving it a runner here fails loudly the first time it's exercised
// rather than shipping a soft failure to whoever hits it first.
type Executor struct {
	overrides map[decision.Action]Runner

	throttle    Runner
	quarantine  Runner
	kill        Runner
	pauseResume Runner
	freeze      Runner
	renice      Runner
	restart     Runner
}

// NewExecutor wires the default set of per-action runners.
func NewExecutor() *Executor {
	return &Executor{
		overrides:   map[decision.Action]Runner{},
		throttle:    NewCPUThrottleRunner(DefaultThrottleConfig()),
		quarantine:  NewQuarantineRunner(),
		kill:        NewKillRunner(),
		pauseResume: NewPauseResumeRunner(),
		freeze:      NewFreezeRunner(),
		renice:      NewReniceRunner(defaultReniceTarget),
		restart:     NewRestartRunner(),
	}
}

// RegisterRunner overrides (or adds) the runner used for a given action,
// letting callers substitute fakes in tests or tune a runner's config.
// Overrides are consulted before the exhaustive switch, so a test can
// still stand in for an action runnerFor already knows about.
func (e *Executor) RegisterRunner(a decision.Action, r Runner) {
	if e.overrides == nil {
		e.overrides = map[decision.Action]Runner{}
	}
	e.overrides[a] = r
}

// runnerFor returns the Runner for a, panicking on any action not covered
// by an arm below. Apply and VerifyAction special-case decision.Keep
// before dispatch; Reverse does not, so Reverse(Keep) panics here.
func (e *Executor) runnerFor(a decision.Action) Runner {
	if r, ok := e.overrides[a]; ok {
		return r
	}
	switch a {
	case decision.Throttle:
		return e.throttle
	case decision.Quarantine, decision.Unquarantine:
		return e.quarantine
	case decision.Kill:
		return e.kill
	case decision.Pause, decision.Resume:
		return e.pauseResume
	case decision.Freeze, decision.Unfreeze:
		return e.freeze
	case decision.Renice:
		return e.renice
	case decision.Restart:
		return e.restart
	default:
		panic(fmt.Sprintf("action: no runner arm registered for %v", a))
	}
}

// Apply dispatches action against pid: Keep is a no-op that verifies
// trivially; every other action executes via its runner, then verifies,
// stamping a Status that reflects exactly what happened.
func (e *Executor) Apply(a decision.Action, pid uint32) Result {
	result := Result{Action: a, PID: pid, Status: StatusExecuting}

	if a == decision.Keep {
		result.Status = StatusVerified
		result.AppliedAt = time.Now()
		result.VerifiedAt = result.AppliedAt
		return result
	}

	runner := e.runnerFor(a)

	reversal, err := runner.Execute(pid)
	result.AppliedAt = time.Now()
	if err != nil {
		result.Err = err
		result.Status = statusForError(err)
		return result
	}
	result.Reversal = reversal

	if verr := runner.Verify(pid); verr != nil {
		result.Err = verr
		result.Status = StatusVerificationFailed
		return result
	}

	result.VerifiedAt = time.Now()
	result.Status = StatusVerified
	return result
}

// Reverse undoes a previously applied action using its captured reversal
// metadata.
func (e *Executor) Reverse(a decision.Action, metadata ReversalMetadata) *Error {
	return e.runnerFor(a).Reverse(metadata)
}

// VerifyAction re-reads pid's state against a, independent of the
// Apply/Verify call already made at execution time. Used to re-confirm an
// end state recorded in a past apply, from a later, separate invocation.
func (e *Executor) VerifyAction(a decision.Action, pid uint32) *Error {
	if a == decision.Keep {
		return nil
	}
	return e.runnerFor(a).Verify(pid)
}

func statusForError(err *Error) Status {
	if err.Kind == ErrKindPermissionDenied {
		return StatusPermissionDenied
	}
	return StatusFailed
}
