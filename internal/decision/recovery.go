package decision

import (
	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/priors"
)

// RecoveryExpectation is one recovery-capable action's posterior-weighted
// probability of restoring a process to useful operation, drawn from
// causal-intervention studies rather than observational correlation.
type RecoveryExpectation struct {
	Action      Action
	Probability float64
}

// recoveryActions lists the actions causal-intervention priors may be
// configured for, and their priors.CausalInterventions field name.
var recoveryActions = []struct {
	action Action
	name   string
}{
	{Pause, "pause"},
	{Throttle, "throttle"},
	{Kill, "kill"},
	{Restart, "restart"},
}

// ExpectedRecoveryByAction computes, for each recovery-capable action that
// has a configured CausalInterventions entry, the posterior-weighted
// average of the per-class recovery probability (the Beta mean). Actions
// with no configured entry are omitted entirely, not scored at zero.
func ExpectedRecoveryByAction(p *priors.Priors, posterior inference.ClassScores) []RecoveryExpectation {
	if p == nil || p.CausalInterventions == nil {
		return nil
	}

	var out []RecoveryExpectation
	for _, ra := range recoveryActions {
		ip := p.CausalInterventions.ForAction(ra.name)
		if ip == nil {
			continue
		}

		var weightedSum, weightTotal float64
		for _, class := range priors.ClassNames() {
			beta := ip.ForClass(class)
			if beta == nil {
				continue
			}
			weight := classPosteriorWeight(posterior, class)
			weightedSum += weight * beta.Mean()
			weightTotal += weight
		}
		if weightTotal <= 0.0 {
			continue
		}
		out = append(out, RecoveryExpectation{
			Action:      ra.action,
			Probability: weightedSum / weightTotal,
		})
	}
	return out
}

func classPosteriorWeight(scores inference.ClassScores, class string) float64 {
	switch class {
	case "useful":
		return scores.Useful
	case "useful_bad":
		return scores.UsefulBad
	case "abandoned":
		return scores.Abandoned
	case "zombie":
		return scores.Zombie
	default:
		return 0
	}
}
