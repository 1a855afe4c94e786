package decision

import (
	"testing"

	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/policy"
)

func testLossMatrix() policy.LossMatrix {
	return policy.LossMatrix{
		Useful: policy.LossRow{
			Keep: 0, Pause: floatPtr(5), Throttle: floatPtr(8), Renice: floatPtr(2),
			Kill: 100, Restart: floatPtr(60),
		},
		UsefulBad: policy.LossRow{
			Keep: 10, Pause: floatPtr(6), Throttle: floatPtr(8), Renice: floatPtr(4),
			Kill: 20, Restart: floatPtr(12),
		},
		Abandoned: policy.LossRow{
			Keep: 30, Pause: floatPtr(15), Throttle: floatPtr(10), Renice: floatPtr(12),
			Kill: 1, Restart: floatPtr(8),
		},
		Zombie: policy.LossRow{
			Keep: 50, Pause: floatPtr(20), Throttle: floatPtr(15), Renice: floatPtr(18),
			Kill: 1, Restart: floatPtr(5),
		},
	}
}

func TestCVaRCertainUsefulProcess(t *testing.T) {
	posterior := inference.ClassScores{Useful: 1.0, UsefulBad: 0, Abandoned: 0, Zombie: 0}
	lm := testLossMatrix()

	cvarKeep, err := ComputeCVaR(Keep, posterior, lm, 0.95)
	if err != nil {
		t.Fatalf("ComputeCVaR(Keep): %v", err)
	}
	cvarKill, err := ComputeCVaR(Kill, posterior, lm, 0.95)
	if err != nil {
		t.Fatalf("ComputeCVaR(Kill): %v", err)
	}

	if !approxEqual(cvarKeep.CVaR, 0.0, 1e-6) {
		t.Errorf("Keep CVaR = %v, want 0", cvarKeep.CVaR)
	}
	if !approxEqual(cvarKill.CVaR, 100.0, 1e-6) {
		t.Errorf("Kill CVaR = %v, want 100", cvarKill.CVaR)
	}
	if !approxEqual(cvarKeep.ExpectedLoss, 0.0, 1e-6) {
		t.Errorf("Keep E[L] = %v, want 0", cvarKeep.ExpectedLoss)
	}
}

func TestCVaRUniformPosterior(t *testing.T) {
	posterior := inference.ClassScores{Useful: 0.25, UsefulBad: 0.25, Abandoned: 0.25, Zombie: 0.25}
	lm := testLossMatrix()

	cvarKill, err := ComputeCVaR(Kill, posterior, lm, 0.95)
	if err != nil {
		t.Fatalf("ComputeCVaR: %v", err)
	}
	if !approxEqual(cvarKill.CVaR, 100.0, 1e-6) {
		t.Errorf("CVaR = %v, want 100 (worst outcome dominates tight tail)", cvarKill.CVaR)
	}
	if !approxEqual(cvarKill.ExpectedLoss, 30.5, 1e-6) {
		t.Errorf("ExpectedLoss = %v, want 30.5", cvarKill.ExpectedLoss)
	}
}

func TestCVaRReversesDecision(t *testing.T) {
	posterior := inference.ClassScores{Useful: 0.10, UsefulBad: 0.05, Abandoned: 0.80, Zombie: 0.05}
	lm := testLossMatrix()

	cvarKill, err := ComputeCVaR(Kill, posterior, lm, 0.95)
	if err != nil {
		t.Fatalf("ComputeCVaR(Kill): %v", err)
	}
	cvarKeep, err := ComputeCVaR(Keep, posterior, lm, 0.95)
	if err != nil {
		t.Fatalf("ComputeCVaR(Keep): %v", err)
	}

	if !(cvarKill.ExpectedLoss < cvarKeep.ExpectedLoss) {
		t.Errorf("expected Kill E[L] (%v) < Keep E[L] (%v)", cvarKill.ExpectedLoss, cvarKeep.ExpectedLoss)
	}
	if !(cvarKill.CVaR > cvarKeep.CVaR) {
		t.Errorf("expected Kill CVaR (%v) > Keep CVaR (%v) due to tail risk", cvarKill.CVaR, cvarKeep.CVaR)
	}
}

func TestCVaRAlphaExtremeValues(t *testing.T) {
	posterior := inference.ClassScores{Useful: 0.25, UsefulBad: 0.25, Abandoned: 0.25, Zombie: 0.25}
	lm := testLossMatrix()

	cvarHigh, err := ComputeCVaR(Kill, posterior, lm, 0.99)
	if err != nil {
		t.Fatalf("ComputeCVaR: %v", err)
	}
	if !approxEqual(cvarHigh.CVaR, 100.0, 1e-6) {
		t.Errorf("alpha=0.99 CVaR = %v, want 100", cvarHigh.CVaR)
	}

	cvarLow, err := ComputeCVaR(Kill, posterior, lm, 0.01)
	if err != nil {
		t.Fatalf("ComputeCVaR: %v", err)
	}
	relDiff := (cvarLow.CVaR - cvarLow.ExpectedLoss) / cvarLow.ExpectedLoss
	if relDiff < 0 {
		relDiff = -relDiff
	}
	if relDiff >= 0.02 {
		t.Errorf("alpha=0.01 should be within 2%% of E[L], got CVaR=%v E[L]=%v", cvarLow.CVaR, cvarLow.ExpectedLoss)
	}
}

func TestInvalidAlpha(t *testing.T) {
	posterior := inference.ClassScores{Useful: 1.0, UsefulBad: 0, Abandoned: 0, Zombie: 0}
	lm := testLossMatrix()

	for _, alpha := range []float64{0.0, 1.0, -0.5} {
		_, err := ComputeCVaR(Keep, posterior, lm, alpha)
		if _, ok := err.(*InvalidAlphaError); !ok {
			t.Errorf("ComputeCVaR(alpha=%v) err = %v (%T), want *InvalidAlphaError", alpha, err, err)
		}
	}
}

func TestDecideWithCVaR(t *testing.T) {
	posterior := inference.ClassScores{Useful: 0.10, UsefulBad: 0.05, Abandoned: 0.80, Zombie: 0.05}
	pol := policy.Default()
	pol.LossMatrix = testLossMatrix()

	feasible := []Action{Keep, Pause, Kill}
	outcome, err := DecideWithCVaR(posterior, &pol, feasible, 0.95, Kill, "test_reason")
	if err != nil {
		t.Fatalf("DecideWithCVaR: %v", err)
	}

	if !outcome.Applied {
		t.Error("expected Applied = true")
	}
	if outcome.Alpha != 0.95 {
		t.Errorf("Alpha = %v, want 0.95", outcome.Alpha)
	}
	if outcome.OriginalAction != Kill {
		t.Errorf("OriginalAction = %v, want Kill", outcome.OriginalAction)
	}
	if outcome.RiskAdjustedAction == Kill {
		t.Error("CVaR should avoid Kill due to tail risk")
	}
	if !outcome.ActionChanged {
		t.Error("expected ActionChanged = true")
	}
}

func TestCVaRTrigger(t *testing.T) {
	trigger := CvarTrigger{RobotMode: true}
	if !trigger.ShouldApply() {
		t.Error("expected ShouldApply = true")
	}
	if !contains(trigger.Reason(), "robot_mode") {
		t.Errorf("Reason() = %q, want to contain robot_mode", trigger.Reason())
	}

	noTrigger := CvarTrigger{}
	if noTrigger.ShouldApply() {
		t.Error("expected ShouldApply = false")
	}
	if noTrigger.Reason() != "none" {
		t.Errorf("Reason() = %q, want none", noTrigger.Reason())
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestVaRComputation(t *testing.T) {
	posterior := inference.ClassScores{Useful: 0.25, UsefulBad: 0.25, Abandoned: 0.25, Zombie: 0.25}
	lm := testLossMatrix()

	cv, err := ComputeCVaR(Kill, posterior, lm, 0.95)
	if err != nil {
		t.Fatalf("ComputeCVaR: %v", err)
	}
	if !approxEqual(cv.VaR, 100.0, 1e-6) {
		t.Errorf("VaR = %v, want 100", cv.VaR)
	}
}
