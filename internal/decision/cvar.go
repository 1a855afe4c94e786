// CVaR (Conditional Value at Risk) for risk-sensitive decision making.
//
// Expected-loss minimization picks the action with the lowest average
// loss, but can pick an action with a low average and a catastrophic tail.
// CVaR instead evaluates the conditional expectation of loss within the
// worst (1-alpha) probability mass, so a rare but severe outcome (e.g.
// Kill on what turns out to be a useful process) dominates the score even
// when its probability is small.
//
// For a random loss L and confidence level alpha in (0,1):
//   - VaR_alpha(L)  = inf { x : P(L <= x) >= alpha }   (the alpha-quantile)
//   - CVaR_alpha(L) = E[L | L >= VaR_alpha(L)]          (tail expectation)
//
// Over our four-class discrete posterior this is tractable directly: sort
// the (loss, probability) pairs by loss descending, accumulate probability
// mass until it reaches (1-alpha), and average loss over that mass.
//
// CVaR should be applied in robot mode (autonomous decisions need
// conservative bounds), when the posterior is diffuse (low confidence),
// when the blast radius of getting it wrong is large, or when the operator
// passed an explicit --conservative flag.
package decision

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/policy"
)

// CvarLoss is the CVaR computation result for a single action.
type CvarLoss struct {
	Action       Action
	CVaR         float64
	ExpectedLoss float64
	VaR          float64
	Alpha        float64
}

// RiskSensitiveOutcome is the result of re-ranking feasible actions by CVaR
// instead of plain expected loss.
type RiskSensitiveOutcome struct {
	Applied            bool
	Reason             string
	OriginalAction     Action
	RiskAdjustedAction Action
	CVaRLosses         []CvarLoss
	Alpha              float64
	ActionChanged      bool
}

// InvalidAlphaError reports a CVaR confidence level outside (0, 1).
type InvalidAlphaError struct {
	Alpha float64
}

func (e *InvalidAlphaError) Error() string {
	return fmt.Sprintf("invalid alpha: must be in (0, 1), got %v", e.Alpha)
}

// ComputeCVaR computes CVaR for a single action given a posterior and loss
// matrix at confidence level alpha (e.g. 0.95 means the worst 5% tail).
func ComputeCVaR(action Action, posterior inference.ClassScores, lm policy.LossMatrix, alpha float64) (*CvarLoss, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, &InvalidAlphaError{Alpha: alpha}
	}

	type lossProb struct {
		loss float64
		prob float64
	}

	rows := []struct {
		row  policy.LossRow
		prob float64
	}{
		{lm.Useful, posterior.Useful},
		{lm.UsefulBad, posterior.UsefulBad},
		{lm.Abandoned, posterior.Abandoned},
		{lm.Zombie, posterior.Zombie},
	}

	pairs := make([]lossProb, 0, 4)
	expectedLoss := 0.0
	for _, r := range rows {
		loss, err := lossForActionClassCVaR(action, r.row)
		if err != nil {
			return nil, err
		}
		expectedLoss += loss * r.prob
		if r.prob > 0 {
			pairs = append(pairs, lossProb{loss: loss, prob: r.prob})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].loss > pairs[j].loss })

	sorted := make([][2]float64, len(pairs))
	for i, p := range pairs {
		sorted[i] = [2]float64{p.loss, p.prob}
	}

	tailProb := 1.0 - alpha
	cvar, vAR := computeDiscreteCVaR(sorted, tailProb)

	return &CvarLoss{
		Action:       action,
		CVaR:         cvar,
		ExpectedLoss: expectedLoss,
		VaR:          vAR,
		Alpha:        alpha,
	}, nil
}

// computeDiscreteCVaR computes (CVaR, VaR) given (loss, probability) pairs
// already sorted by loss descending.
func computeDiscreteCVaR(sorted [][2]float64, tailProb float64) (float64, float64) {
	if len(sorted) == 0 || tailProb <= 0 {
		return 0, 0
	}

	accumulatedProb := 0.0
	weightedSum := 0.0
	vAR := sorted[0][0]

	for _, lp := range sorted {
		loss, prob := lp[0], lp[1]
		if accumulatedProb >= tailProb {
			break
		}

		remaining := tailProb - accumulatedProb
		contribProb := math.Min(prob, remaining)

		vAR = loss

		weightedSum += loss * contribProb
		accumulatedProb += prob
	}

	if accumulatedProb > 0 {
		return weightedSum / math.Min(accumulatedProb, tailProb), vAR
	}
	return sorted[0][0], vAR
}

// lossForActionClassCVaR mirrors lossForActionClass but reports an
// InvalidPosteriorError (the CVaR error family) rather than a
// MissingLossError, since cvar.go never disables an action — it simply
// can't be scored.
func lossForActionClassCVaR(action Action, row policy.LossRow) (float64, error) {
	switch action {
	case Keep:
		return row.Keep, nil
	case Pause, Freeze:
		if row.Pause == nil {
			return 0, &InvalidPosteriorError{Message: fmt.Sprintf("missing pause loss for action %v", action)}
		}
		return *row.Pause, nil
	case Throttle, Quarantine:
		if row.Throttle == nil {
			return 0, &InvalidPosteriorError{Message: fmt.Sprintf("missing throttle loss for action %v", action)}
		}
		return *row.Throttle, nil
	case Renice:
		if row.Renice == nil {
			return 0, &InvalidPosteriorError{Message: fmt.Sprintf("missing renice loss for action %v", action)}
		}
		return *row.Renice, nil
	case Restart:
		if row.Restart == nil {
			return 0, &InvalidPosteriorError{Message: fmt.Sprintf("missing restart loss for action %v", action)}
		}
		return *row.Restart, nil
	case Kill:
		return row.Kill, nil
	default:
		return 0, &InvalidPosteriorError{Message: fmt.Sprintf("follow-up action %v has no loss", action)}
	}
}

// ErrNoFeasibleActionsCVaR is returned when every candidate action lacked a
// scorable loss entry.
var ErrNoFeasibleActionsCVaR = fmt.Errorf("no feasible actions")

// DecideWithCVaR computes CVaR for every feasible action and selects the
// risk-adjusted optimum, reporting whether it differs from the expected
// loss optimum originally selected.
func DecideWithCVaR(posterior inference.ClassScores, pol *policy.Policy, feasibleActions []Action, alpha float64, originalOptimal Action, reason string) (*RiskSensitiveOutcome, error) {
	if len(feasibleActions) == 0 {
		return nil, ErrNoFeasibleActionsCVaR
	}

	var cvarLosses []CvarLoss
	for _, action := range feasibleActions {
		cv, err := ComputeCVaR(action, posterior, pol.LossMatrix, alpha)
		if err != nil {
			continue
		}
		cvarLosses = append(cvarLosses, *cv)
	}

	if len(cvarLosses) == 0 {
		return nil, ErrNoFeasibleActionsCVaR
	}

	riskAdjusted := selectMinCVaR(cvarLosses)

	return &RiskSensitiveOutcome{
		Applied:            true,
		Reason:             reason,
		OriginalAction:     originalOptimal,
		RiskAdjustedAction: riskAdjusted,
		CVaRLosses:         cvarLosses,
		Alpha:              alpha,
		ActionChanged:      riskAdjusted != originalOptimal,
	}, nil
}

func selectMinCVaR(cvarLosses []CvarLoss) Action {
	best := cvarLosses[0]
	for _, cv := range cvarLosses[1:] {
		if cv.CVaR < best.CVaR {
			best = cv
		} else if math.Abs(cv.CVaR-best.CVaR) <= 1e-12 {
			if cv.Action.TieBreakRank() < best.Action.TieBreakRank() {
				best = cv
			}
		}
	}
	return best.Action
}

// CvarTrigger determines whether risk-sensitive (CVaR) control should
// override plain expected-loss minimization.
type CvarTrigger struct {
	RobotMode            bool
	LowConfidence        bool
	HighBlastRadius      bool
	ExplicitConservative bool
	BlastRadiusMB        *float64
}

// ShouldApply reports whether any trigger condition is met.
func (t CvarTrigger) ShouldApply() bool {
	return t.RobotMode || t.LowConfidence || t.HighBlastRadius || t.ExplicitConservative
}

// Reason returns a comma-joined list of the active trigger names, or
// "none" if ShouldApply is false.
func (t CvarTrigger) Reason() string {
	var reasons []string
	if t.RobotMode {
		reasons = append(reasons, "robot_mode")
	}
	if t.LowConfidence {
		reasons = append(reasons, "low_confidence")
	}
	if t.HighBlastRadius {
		if t.BlastRadiusMB != nil {
			reasons = append(reasons, fmt.Sprintf("high_blast_radius (%.0f MB)", *t.BlastRadiusMB))
		} else {
			reasons = append(reasons, "high_blast_radius")
		}
	}
	if t.ExplicitConservative {
		reasons = append(reasons, "explicit_conservative_flag")
	}

	if len(reasons) == 0 {
		return "none"
	}
	return strings.Join(reasons, ", ")
}
