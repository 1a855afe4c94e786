package action

import (
	"fmt"
	"regexp"
	"time"

	"github.com/processtriage/pttriage/internal/decision"
	"github.com/processtriage/pttriage/internal/policy"
)

// GuardrailViolation explains why a destructive action was blocked before
// it ever reached a Runner.
type GuardrailViolation struct {
	Rule    string
	Message string
}

func (v GuardrailViolation) Error() string { return fmt.Sprintf("%s: %s", v.Rule, v.Message) }

// Target is the subset of a process record the guardrail check needs.
type Target struct {
	PID             uint32
	PPID            uint32
	Cmdline         string
	StartedAt       time.Time
	HasOpenWriteFDs bool
	HasLockedFiles  bool
	HasActiveTTY    bool
}

// RunTally tracks destructive actions taken so far in the current run, so
// MaxKillsPerRun can be enforced across many decisions in one tick.
type RunTally struct {
	Kills int
}

// CheckGuardrails enforces the policy's never-kill/protected-pattern/
// min-age/max-kills constraints and, separately, the data-loss gates
// (open write fds, locked files, active TTY) before a destructive action
// (Kill, Restart) is allowed to reach its runner. Keep/Renice/Throttle/
// Pause/Freeze/Quarantine are not gated here: only Kill and Restart are
// irreversible enough to warrant the data-loss check, matching the
// policy's own DataLossGates scope.
func CheckGuardrails(a decision.Action, target Target, guardrails policy.Guardrails, gates policy.DataLossGates, tally RunTally) *GuardrailViolation {
	for _, protectedPPID := range guardrails.NeverKillPPIDs {
		if int(target.PPID) == protectedPPID && isDestructive(a) {
			return &GuardrailViolation{Rule: "never_kill_ppid", Message: fmt.Sprintf("ppid %d is protected", target.PPID)}
		}
	}

	for _, pattern := range guardrails.ProtectedCommandGlobs {
		matched, err := regexp.MatchString(pattern, target.Cmdline)
		if err == nil && matched && isDestructive(a) {
			return &GuardrailViolation{Rule: "protected_command_pattern", Message: fmt.Sprintf("cmdline matches protected pattern %q", pattern)}
		}
	}

	if guardrails.MinProcessAgeSeconds > 0 && isDestructive(a) {
		minAge := time.Duration(guardrails.MinProcessAgeSeconds * float64(time.Second))
		age := time.Since(target.StartedAt)
		if age < minAge {
			return &GuardrailViolation{Rule: "min_process_age", Message: fmt.Sprintf("process age %s below minimum %s", age, minAge)}
		}
	}

	if a == decision.Kill && guardrails.MaxKillsPerRun > 0 && tally.Kills >= guardrails.MaxKillsPerRun {
		return &GuardrailViolation{Rule: "max_kills_per_run", Message: fmt.Sprintf("max kills per run (%d) reached", guardrails.MaxKillsPerRun)}
	}

	if isDestructive(a) {
		if gates.BlockOnOpenWriteFDs && target.HasOpenWriteFDs {
			return &GuardrailViolation{Rule: "data_loss_gate", Message: "process has open write file descriptors"}
		}
		if gates.BlockOnLockedFiles && target.HasLockedFiles {
			return &GuardrailViolation{Rule: "data_loss_gate", Message: "process holds locked files"}
		}
		if gates.BlockOnActiveTTY && target.HasActiveTTY {
			return &GuardrailViolation{Rule: "data_loss_gate", Message: "process has an active controlling tty"}
		}
	}

	return nil
}

func isDestructive(a decision.Action) bool {
	return a == decision.Kill || a == decision.Restart
}
