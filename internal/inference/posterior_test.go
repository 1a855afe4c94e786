package inference

import (
	"math"
	"testing"

	"github.com/processtriage/pttriage/internal/priors"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func baseClassPriors() priors.ClassPriors {
	return priors.ClassPriors{
		PriorProb:    0.25,
		CPUBeta:      priors.BetaParams{Alpha: 1, Beta: 1},
		RuntimeGamma: &priors.GammaParams{Shape: 2, Rate: 1},
		OrphanBeta:   priors.BetaParams{Alpha: 1, Beta: 1},
		TTYBeta:      priors.BetaParams{Alpha: 1, Beta: 1},
		NetBeta:      priors.BetaParams{Alpha: 1, Beta: 1},
		IOActiveBeta: &priors.BetaParams{Alpha: 1, Beta: 1},
	}
}

func basePriors() *priors.Priors {
	cp := baseClassPriors()
	return &priors.Priors{
		SchemaVersion: "1.0.0",
		Classes: priors.Classes{
			Useful:    cp,
			UsefulBad: cp,
			Abandoned: cp,
			Zombie:    cp,
		},
	}
}

func TestComputePosterior_PriorOnlyMatchesPriors(t *testing.T) {
	result, err := ComputePosterior(basePriors(), &Evidence{})
	if err != nil {
		t.Fatalf("ComputePosterior: %v", err)
	}
	if !approxEqual(result.Posterior.Useful, 0.25, 1e-12) ||
		!approxEqual(result.Posterior.UsefulBad, 0.25, 1e-12) ||
		!approxEqual(result.Posterior.Abandoned, 0.25, 1e-12) ||
		!approxEqual(result.Posterior.Zombie, 0.25, 1e-12) {
		t.Errorf("expected uniform posterior, got %+v", result.Posterior)
	}
}

func TestComputePosterior_UniformCPUFractionDoesNotShiftPriors(t *testing.T) {
	occ := 0.42
	result, err := ComputePosterior(basePriors(), &Evidence{CPU: &CPUEvidence{Occupancy: &occ}})
	if err != nil {
		t.Fatalf("ComputePosterior: %v", err)
	}
	if !approxEqual(result.Posterior.Useful, 0.25, 1e-12) {
		t.Errorf("uniform Beta(1,1) CPU evidence should not move posterior, got %v", result.Posterior.Useful)
	}
}

func TestComputePosterior_LogOddsMatchesRatio(t *testing.T) {
	p := basePriors()
	p.Classes.Useful.PriorProb = 0.8
	p.Classes.Abandoned.PriorProb = 0.1
	p.Classes.UsefulBad.PriorProb = 0.05
	p.Classes.Zombie.PriorProb = 0.05

	result, err := ComputePosterior(p, &Evidence{})
	if err != nil {
		t.Fatalf("ComputePosterior: %v", err)
	}
	expected := math.Log(0.1 / 0.8)
	if !approxEqual(result.LogOddsAbandonedUseful, expected, 1e-12) {
		t.Errorf("LogOddsAbandonedUseful = %v, want %v", result.LogOddsAbandonedUseful, expected)
	}
}

func TestComputePosterior_InvalidCPUFractionErrors(t *testing.T) {
	occ := 1.5
	_, err := ComputePosterior(basePriors(), &Evidence{CPU: &CPUEvidence{Occupancy: &occ}})
	if err == nil {
		t.Fatal("expected error for out-of-range occupancy")
	}
	ve, ok := err.(*InvalidEvidenceError)
	if !ok {
		t.Fatalf("expected *InvalidEvidenceError, got %T", err)
	}
	if ve.Field != "cpu.occupancy" {
		t.Errorf("Field = %q, want cpu.occupancy", ve.Field)
	}
}

func TestComputePosterior_RuntimeGammaFinitePosterior(t *testing.T) {
	runtime := 2.0
	result, err := ComputePosterior(basePriors(), &Evidence{RuntimeSeconds: &runtime})
	if err != nil {
		t.Fatalf("ComputePosterior: %v", err)
	}
	if math.IsNaN(result.Posterior.Useful) || math.IsInf(result.Posterior.Useful, 0) {
		t.Errorf("posterior.useful should be finite, got %v", result.Posterior.Useful)
	}
}

func TestComputePosterior_PosteriorSumsToOne(t *testing.T) {
	cp := basePriors()
	k, n := 3.0, 10.0
	orphan := true
	net := false
	result, err := ComputePosterior(cp, &Evidence{
		CPU:    &CPUEvidence{K: &k, N: &n},
		Orphan: &orphan,
		Net:    &net,
	})
	if err != nil {
		t.Fatalf("ComputePosterior: %v", err)
	}
	sum := result.Posterior.Useful + result.Posterior.UsefulBad + result.Posterior.Abandoned + result.Posterior.Zombie
	if !approxEqual(sum, 1.0, 1e-6) {
		t.Errorf("posterior sums to %v, want 1.0", sum)
	}
}

func TestComputePosterior_NonPositivePriorProbErrors(t *testing.T) {
	p := basePriors()
	p.Classes.Useful.PriorProb = 0
	_, err := ComputePosterior(p, &Evidence{})
	if err == nil {
		t.Fatal("expected error for zero prior probability")
	}
	if _, ok := err.(*InvalidPriorsError); !ok {
		t.Fatalf("expected *InvalidPriorsError, got %T", err)
	}
}

func TestComputePosterior_StateFlagOutOfRangeErrors(t *testing.T) {
	p := basePriors()
	dir := &priors.PerClassDirichlet{
		Useful:    &priors.DirichletParams{Alpha: []float64{1, 1}},
		UsefulBad: &priors.DirichletParams{Alpha: []float64{1, 1}},
		Abandoned: &priors.DirichletParams{Alpha: []float64{1, 1}},
		Zombie:    &priors.DirichletParams{Alpha: []float64{1, 1}},
	}
	p.StateFlags = dir
	idx := 5
	_, err := ComputePosterior(p, &Evidence{StateFlagIndex: &idx})
	if err == nil {
		t.Fatal("expected error for out-of-range state flag index")
	}
}
