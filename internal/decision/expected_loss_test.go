package decision

import (
	"testing"

	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/policy"
	"github.com/processtriage/pttriage/internal/priors"
)

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func floatPtr(v float64) *float64 { return &v }

func TestExpectedLossMatchesDefinition(t *testing.T) {
	pol := policy.Default()
	posterior := inference.ClassScores{Useful: 0.5, UsefulBad: 0.2, Abandoned: 0.2, Zombie: 0.1}

	outcome, err := DecideAction(posterior, &pol, AllowAll())
	if err != nil {
		t.Fatalf("DecideAction: %v", err)
	}

	var keepLoss float64
	found := false
	for _, el := range outcome.ExpectedLoss {
		if el.Action == Keep {
			keepLoss = el.Loss
			found = true
		}
	}
	if !found {
		t.Fatal("expected Keep in expected losses")
	}

	want := 0.5*pol.LossMatrix.Useful.Keep + 0.2*pol.LossMatrix.UsefulBad.Keep + 0.2*pol.LossMatrix.Abandoned.Keep + 0.1*pol.LossMatrix.Zombie.Keep
	if !approxEqual(keepLoss, want, 1e-12) {
		t.Errorf("keepLoss = %v, want %v", keepLoss, want)
	}
}

func uniformLossRow() policy.LossRow {
	return policy.LossRow{
		Keep:     1.0,
		Pause:    floatPtr(1.0),
		Throttle: floatPtr(1.0),
		Renice:   floatPtr(1.0),
		Restart:  floatPtr(1.0),
		Kill:     1.0,
	}
}

func TestTieBreakPrefersReversible(t *testing.T) {
	pol := policy.Default()
	pol.LossMatrix = policy.LossMatrix{
		Useful:    uniformLossRow(),
		UsefulBad: uniformLossRow(),
		Abandoned: uniformLossRow(),
		Zombie:    uniformLossRow(),
	}
	posterior := inference.ClassScores{Useful: 0.25, UsefulBad: 0.25, Abandoned: 0.25, Zombie: 0.25}

	outcome, err := DecideAction(posterior, &pol, AllowAll())
	if err != nil {
		t.Fatalf("DecideAction: %v", err)
	}
	if outcome.OptimalAction != Keep {
		t.Errorf("OptimalAction = %v, want Keep", outcome.OptimalAction)
	}
	if !outcome.Rationale.TieBreak {
		t.Error("expected TieBreak = true")
	}
}

func TestInvalidPosteriorRejected(t *testing.T) {
	pol := policy.Default()
	posterior := inference.ClassScores{Useful: 0.5, UsefulBad: 0.5, Abandoned: 0.2, Zombie: -0.2}

	_, err := DecideAction(posterior, &pol, AllowAll())
	if err == nil {
		t.Fatal("expected error for invalid posterior")
	}
	if _, ok := err.(*InvalidPosteriorError); !ok {
		t.Errorf("got %T, want *InvalidPosteriorError", err)
	}
}

func TestSPRTBoundaryComputed(t *testing.T) {
	pol := policy.Default()
	boundary, err := computeSPRTBoundary(pol.LossMatrix)
	if err != nil {
		t.Fatalf("computeSPRTBoundary: %v", err)
	}
	if boundary == nil {
		t.Fatal("expected a boundary")
	}
	if !isFinite(boundary.LogOddsThreshold) {
		t.Errorf("LogOddsThreshold not finite: %v", boundary.LogOddsThreshold)
	}
}

func isFinite(v float64) bool {
	return v == v && v < 1e308 && v > -1e308
}

func TestRecoveryPreferenceOverridesSmallLossGap(t *testing.T) {
	posterior := inference.ClassScores{Useful: 1.0, UsefulBad: 0, Abandoned: 0, Zombie: 0}

	lossRow := policy.LossRow{
		Keep:     0.98,
		Pause:    floatPtr(1.0),
		Throttle: floatPtr(2.0),
		Restart:  floatPtr(2.0),
		Kill:     0.99,
	}
	pol := policy.Default()
	pol.LossMatrix = policy.LossMatrix{
		Useful:    lossRow,
		UsefulBad: lossRow,
		Abandoned: lossRow,
		Zombie:    lossRow,
	}

	classPriors := priors.ClassPriors{
		PriorProb:  0.25,
		CPUBeta:    priors.BetaParams{Alpha: 1, Beta: 1},
		OrphanBeta: priors.BetaParams{Alpha: 1, Beta: 1},
		TTYBeta:    priors.BetaParams{Alpha: 1, Beta: 1},
		NetBeta:    priors.BetaParams{Alpha: 1, Beta: 1},
	}

	pr := &priors.Priors{
		SchemaVersion: "1.0.0",
		Classes: priors.Classes{
			Useful:    classPriors,
			UsefulBad: classPriors,
			Abandoned: classPriors,
			Zombie:    classPriors,
		},
		CausalInterventions: &priors.CausalInterventions{
			Pause: &priors.InterventionPriors{
				Useful:    &priors.BetaParams{Alpha: 9, Beta: 1},
				UsefulBad: &priors.BetaParams{Alpha: 1, Beta: 1},
				Abandoned: &priors.BetaParams{Alpha: 1, Beta: 1},
				Zombie:    &priors.BetaParams{Alpha: 1, Beta: 1},
			},
			Kill: &priors.InterventionPriors{
				Useful:    &priors.BetaParams{Alpha: 1, Beta: 9},
				UsefulBad: &priors.BetaParams{Alpha: 1, Beta: 1},
				Abandoned: &priors.BetaParams{Alpha: 1, Beta: 1},
				Zombie:    &priors.BetaParams{Alpha: 1, Beta: 1},
			},
		},
	}

	outcome, err := DecideActionWithRecovery(posterior, &pol, AllowAll(), pr, 0.05)
	if err != nil {
		t.Fatalf("DecideActionWithRecovery: %v", err)
	}
	if outcome.OptimalAction != Pause {
		t.Errorf("OptimalAction = %v, want Pause", outcome.OptimalAction)
	}
	if outcome.RecoveryExpectations == nil {
		t.Error("expected non-nil RecoveryExpectations")
	}
	if !outcome.Rationale.UsedRecoveryPreference {
		t.Error("expected UsedRecoveryPreference = true")
	}
}
