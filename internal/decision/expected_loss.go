package decision

import (
	"fmt"
	"math"

	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/policy"
	"github.com/processtriage/pttriage/internal/priors"
)

// ExpectedLoss is one action's posterior-weighted expected loss.
type ExpectedLoss struct {
	Action Action
	Loss   float64
}

// SprtBoundary is the log-odds threshold implied by the loss matrix's
// useful/abandoned Keep and Kill entries, in the spirit of a sequential
// probability ratio test: above the threshold, Kill dominates Keep in
// expectation.
type SprtBoundary struct {
	LogOddsThreshold float64
	Numerator        float64
	Denominator      float64
}

// DecisionRationale explains why an action was chosen.
type DecisionRationale struct {
	ChosenAction           Action
	TieBreak               bool
	DisabledActions        []DisabledAction
	UsedRecoveryPreference bool
}

// DecisionOutcome is the full result of one decisioning pass.
type DecisionOutcome struct {
	ExpectedLoss                   []ExpectedLoss
	OptimalAction                  Action
	SprtBoundary                   *SprtBoundary
	PosteriorOddsAbandonedVsUseful *float64
	RecoveryExpectations           []RecoveryExpectation
	Rationale                      DecisionRationale
}

// MissingLossError reports that the policy's loss matrix has no entry for
// an (action, class) pair the decision engine needed to evaluate.
type MissingLossError struct {
	Action Action
	Class  string
}

func (e *MissingLossError) Error() string {
	return fmt.Sprintf("missing loss entry for action %v in class %s", e.Action, e.Class)
}

// InvalidPosteriorError reports a posterior that failed validation.
type InvalidPosteriorError struct {
	Message string
}

func (e *InvalidPosteriorError) Error() string { return "invalid posterior: " + e.Message }

// InvalidLossMatrixError reports a loss matrix whose SPRT boundary couldn't
// be derived.
type InvalidLossMatrixError struct {
	Message string
}

func (e *InvalidLossMatrixError) Error() string { return "invalid loss matrix: " + e.Message }

// ErrNoFeasibleActions is returned when every candidate action was either
// infeasible or lacked a loss entry.
var ErrNoFeasibleActions = fmt.Errorf("no feasible actions after applying constraints")

// DecideAction computes expected loss over every feasible candidate action,
// selects the minimizer (tie-broken toward reversibility), and derives the
// SPRT boundary and posterior log-odds for explainability.
func DecideAction(posterior inference.ClassScores, pol *policy.Policy, feasibility ActionFeasibility) (*DecisionOutcome, error) {
	if err := validatePosterior(posterior); err != nil {
		return nil, err
	}

	var expectedLosses []ExpectedLoss
	disabled := append([]DisabledAction(nil), feasibility.Disabled...)

	for _, action := range candidateActions {
		if !feasibility.IsAllowed(action) {
			continue
		}
		loss, err := expectedLossForAction(action, posterior, pol.LossMatrix)
		if err != nil {
			if missing, ok := err.(*MissingLossError); ok {
				disabled = append(disabled, DisabledAction{
					Action: action,
					Reason: fmt.Sprintf("policy missing loss for class %s", missing.Class),
				})
				continue
			}
			return nil, err
		}
		expectedLosses = append(expectedLosses, ExpectedLoss{Action: action, Loss: loss})
	}

	if len(expectedLosses) == 0 {
		return nil, ErrNoFeasibleActions
	}

	optimalAction, tieBreak := selectOptimalAction(expectedLosses)
	sprtBoundary, err := computeSPRTBoundary(pol.LossMatrix)
	if err != nil {
		return nil, err
	}
	posteriorOdds := posteriorOddsAbandonedVsUseful(posterior)

	return &DecisionOutcome{
		ExpectedLoss:                   expectedLosses,
		OptimalAction:                  optimalAction,
		SprtBoundary:                   sprtBoundary,
		PosteriorOddsAbandonedVsUseful: posteriorOdds,
		Rationale: DecisionRationale{
			ChosenAction:    optimalAction,
			TieBreak:        tieBreak,
			DisabledActions: disabled,
		},
	}, nil
}

// DecideActionWithRecovery runs DecideAction's expected-loss minimization,
// then, among actions within lossTolerance of the optimum that also carry a
// causal-intervention recovery prior, prefers the one with the highest
// expected recovery probability.
func DecideActionWithRecovery(posterior inference.ClassScores, pol *policy.Policy, feasibility ActionFeasibility, pr *priors.Priors, lossTolerance float64) (*DecisionOutcome, error) {
	if err := validatePosterior(posterior); err != nil {
		return nil, err
	}

	var expectedLosses []ExpectedLoss
	disabled := append([]DisabledAction(nil), feasibility.Disabled...)

	for _, action := range candidateActions {
		if !feasibility.IsAllowed(action) {
			continue
		}
		loss, err := expectedLossForAction(action, posterior, pol.LossMatrix)
		if err != nil {
			if missing, ok := err.(*MissingLossError); ok {
				disabled = append(disabled, DisabledAction{
					Action: action,
					Reason: fmt.Sprintf("policy missing loss for class %s", missing.Class),
				})
				continue
			}
			return nil, err
		}
		expectedLosses = append(expectedLosses, ExpectedLoss{Action: action, Loss: loss})
	}

	if len(expectedLosses) == 0 {
		return nil, ErrNoFeasibleActions
	}

	recoveryExpectations := ExpectedRecoveryByAction(pr, posterior)
	optimalAction, tieBreak := selectOptimalAction(expectedLosses)
	usedRecoveryPreference := false
	if len(recoveryExpectations) > 0 {
		candidateAction, usedRecovery := selectActionWithRecovery(expectedLosses, recoveryExpectations, math.Max(lossTolerance, 0), optimalAction)
		if usedRecovery {
			usedRecoveryPreference = true
			if candidateAction != optimalAction {
				tieBreak = true
			}
			optimalAction = candidateAction
		}
	}

	sprtBoundary, err := computeSPRTBoundary(pol.LossMatrix)
	if err != nil {
		return nil, err
	}
	posteriorOdds := posteriorOddsAbandonedVsUseful(posterior)

	return &DecisionOutcome{
		ExpectedLoss:                   expectedLosses,
		OptimalAction:                  optimalAction,
		SprtBoundary:                   sprtBoundary,
		PosteriorOddsAbandonedVsUseful: posteriorOdds,
		RecoveryExpectations:           recoveryExpectations,
		Rationale: DecisionRationale{
			ChosenAction:           optimalAction,
			TieBreak:               tieBreak,
			DisabledActions:        disabled,
			UsedRecoveryPreference: usedRecoveryPreference,
		},
	}, nil
}

func validatePosterior(p inference.ClassScores) error {
	values := []float64{p.Useful, p.UsefulBad, p.Abandoned, p.Zombie}
	sum := 0.0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return &InvalidPosteriorError{Message: "posterior contains NaN/Inf or negative values"}
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return &InvalidPosteriorError{Message: fmt.Sprintf("posterior does not sum to 1 (sum=%.6f)", sum)}
	}
	return nil
}

func expectedLossForAction(action Action, posterior inference.ClassScores, lm policy.LossMatrix) (float64, error) {
	useful, err := lossForActionClass(action, lm.Useful, "useful")
	if err != nil {
		return 0, err
	}
	usefulBad, err := lossForActionClass(action, lm.UsefulBad, "useful_bad")
	if err != nil {
		return 0, err
	}
	abandoned, err := lossForActionClass(action, lm.Abandoned, "abandoned")
	if err != nil {
		return 0, err
	}
	zombie, err := lossForActionClass(action, lm.Zombie, "zombie")
	if err != nil {
		return 0, err
	}
	return posterior.Useful*useful + posterior.UsefulBad*usefulBad + posterior.Abandoned*abandoned + posterior.Zombie*zombie, nil
}

// lossForActionClass looks up the loss a row assigns to action, sharing a
// row entry across the actions that escalate the same intervention
// (Pause/Freeze share the pause entry, Throttle/Quarantine share throttle).
// Resume/Unfreeze/Unquarantine are follow-up actions with no independent
// loss and are rejected.
func lossForActionClass(action Action, row policy.LossRow, class string) (float64, error) {
	switch action {
	case Keep:
		return row.Keep, nil
	case Pause, Freeze:
		if row.Pause == nil {
			return 0, &MissingLossError{Action: action, Class: class}
		}
		return *row.Pause, nil
	case Throttle, Quarantine:
		if row.Throttle == nil {
			return 0, &MissingLossError{Action: action, Class: class}
		}
		return *row.Throttle, nil
	case Renice:
		if row.Renice == nil {
			return 0, &MissingLossError{Action: action, Class: class}
		}
		return *row.Renice, nil
	case Restart:
		if row.Restart == nil {
			return 0, &MissingLossError{Action: action, Class: class}
		}
		return *row.Restart, nil
	case Kill:
		return row.Kill, nil
	default:
		return 0, &MissingLossError{Action: action, Class: class}
	}
}

func selectOptimalAction(expected []ExpectedLoss) (Action, bool) {
	best := expected[0]
	tieBreak := false
	for _, cand := range expected[1:] {
		if cand.Loss < best.Loss {
			best = cand
			tieBreak = false
		} else if math.Abs(cand.Loss-best.Loss) <= 1e-12 {
			if cand.Action.TieBreakRank() < best.Action.TieBreakRank() {
				best = cand
			}
			tieBreak = true
		}
	}
	return best.Action, tieBreak
}

func selectActionWithRecovery(expected []ExpectedLoss, recovery []RecoveryExpectation, lossTolerance float64, fallback Action) (Action, bool) {
	bestLoss := math.Inf(1)
	for _, cand := range expected {
		if cand.Loss < bestLoss {
			bestLoss = cand.Loss
		}
	}

	bestRecovery := -1.0
	var bestAction *Action
	for _, cand := range expected {
		if cand.Loss > bestLoss+lossTolerance {
			continue
		}
		for _, r := range recovery {
			if r.Action != cand.Action {
				continue
			}
			if r.Probability > bestRecovery {
				bestRecovery = r.Probability
				a := cand.Action
				bestAction = &a
			}
		}
	}

	if bestAction != nil {
		return *bestAction, true
	}
	return fallback, false
}

func computeSPRTBoundary(lm policy.LossMatrix) (*SprtBoundary, error) {
	lKillUseful := lm.Useful.Kill
	lKeepUseful := lm.Useful.Keep
	lKeepAbandoned := lm.Abandoned.Keep
	lKillAbandoned := lm.Abandoned.Kill

	numerator := lKillUseful - lKeepUseful
	denominator := lKeepAbandoned - lKillAbandoned
	if numerator <= 0 || denominator <= 0 {
		return nil, nil
	}
	ratio := numerator / denominator
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return nil, &InvalidLossMatrixError{Message: "invalid SPRT boundary ratio"}
	}
	return &SprtBoundary{
		LogOddsThreshold: math.Log(ratio),
		Numerator:        numerator,
		Denominator:      denominator,
	}, nil
}

func posteriorOddsAbandonedVsUseful(p inference.ClassScores) *float64 {
	if p.Useful <= 0 || p.Abandoned <= 0 {
		return nil
	}
	v := math.Log(p.Abandoned / p.Useful)
	return &v
}
