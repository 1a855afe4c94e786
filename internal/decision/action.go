// Package decision turns a posterior classification into an action by
// minimizing expected loss against the operator's policy, with an optional
// risk-sensitive (CVaR) override and a recovery-probability tie-break drawn
// from causal-intervention priors.
package decision

// Action is one of the eleven operations the orchestrator can take against
// a process. Resume, Unfreeze, and Unquarantine are follow-up actions that
// reverse a prior Pause/Freeze/Quarantine — they never carry an
// independent loss entry in the policy, so the decision engine never
// proposes them directly; internal/action maps each to the runner of the
// action it undoes.
type Action int

const (
	Keep Action = iota
	Pause
	Resume
	Throttle
	Renice
	Restart
	Kill
	Freeze
	Unfreeze
	Quarantine
	Unquarantine
)

// candidateActions lists the actions the decision engine evaluates by
// expected loss. Freeze/Quarantine share a loss row with Pause/Throttle
// (see lossForActionClass) and are not evaluated here, so the decision
// engine never proposes them.
var candidateActions = []Action{Keep, Pause, Throttle, Renice, Restart, Kill}

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Pause:
		return "pause"
	case Resume:
		return "resume"
	case Throttle:
		return "throttle"
	case Renice:
		return "renice"
	case Restart:
		return "restart"
	case Kill:
		return "kill"
	case Freeze:
		return "freeze"
	case Unfreeze:
		return "unfreeze"
	case Quarantine:
		return "quarantine"
	case Unquarantine:
		return "unquarantine"
	default:
		return "unknown"
	}
}

// TieBreakRank orders actions from least to most destructive for
// tie-breaking when two actions have equal (or near-equal) loss. Lower
// ranks are preferred.
func (a Action) TieBreakRank() uint8 {
	switch a {
	case Keep:
		return 0
	case Renice:
		return 1
	case Pause, Resume, Freeze, Unfreeze:
		return 2
	case Quarantine, Unquarantine, Throttle:
		return 3
	case Restart:
		return 4
	case Kill:
		return 5
	default:
		return 255
	}
}

// DisabledAction records an action excluded from consideration, and why.
type DisabledAction struct {
	Action Action
	Reason string
}

// ActionFeasibility masks out actions that can't be taken against a given
// process (e.g. Restart is infeasible with no known supervisor to restart
// under).
type ActionFeasibility struct {
	Disabled []DisabledAction
}

// AllowAll returns a feasibility mask that excludes nothing.
func AllowAll() ActionFeasibility {
	return ActionFeasibility{}
}

// IsAllowed reports whether action isn't present in the disabled set.
func (f ActionFeasibility) IsAllowed(action Action) bool {
	for _, d := range f.Disabled {
		if d.Action == action {
			return false
		}
	}
	return true
}
