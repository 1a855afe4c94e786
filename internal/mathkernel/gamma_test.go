package mathkernel

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Abs(a-b) <= tol
}

func TestLogBeta_SymmetricAndPositive(t *testing.T) {
	got := LogBeta(2, 3)
	want := LogGamma(2) + LogGamma(3) - LogGamma(5)
	if !approxEqual(got, want, 1e-9) {
		t.Errorf("LogBeta(2,3) = %v, want %v", got, want)
	}
	if !math.IsNaN(LogBeta(0, 1)) {
		t.Error("LogBeta with non-positive a should be NaN")
	}
}

func TestLogBetaPDF_Boundaries(t *testing.T) {
	if got := LogBetaPDF(0, 1, 1); math.IsInf(got, 1) || math.IsInf(got, -1) {
		t.Errorf("LogBetaPDF(0,1,1) should be finite (uniform density), got %v", got)
	}
	if got := LogBetaPDF(0, 0.5, 1); !math.IsInf(got, 1) {
		t.Errorf("LogBetaPDF(0,0.5,1) should diverge to +Inf, got %v", got)
	}
	if got := LogBetaPDF(0, 2, 1); !math.IsInf(got, -1) {
		t.Errorf("LogBetaPDF(0,2,1) should go to -Inf, got %v", got)
	}
}

func TestGammaCDF_MatchesSurvival(t *testing.T) {
	shape, rate, t0 := 2.0, 1.5, 3.0
	cdf := GammaCDF(t0, shape, rate)
	surv := GammaSurvival(t0, shape, rate)
	if !approxEqual(cdf+surv, 1.0, 1e-9) {
		t.Errorf("CDF+Survival = %v, want 1.0", cdf+surv)
	}
}

func TestGammaCDF_ZeroAndInf(t *testing.T) {
	if got := GammaCDF(0, 2, 1); got != 0 {
		t.Errorf("GammaCDF(0,...) = %v, want 0", got)
	}
	if got := GammaCDF(math.Inf(1), 2, 1); got != 1 {
		t.Errorf("GammaCDF(Inf,...) = %v, want 1", got)
	}
}

func TestGammaHazard_ExponentialIsConstant(t *testing.T) {
	rate := 0.5
	h1 := GammaHazard(1, 1, rate)
	h2 := GammaHazard(5, 1, rate)
	if !approxEqual(h1, rate, 1e-9) || !approxEqual(h2, rate, 1e-9) {
		t.Errorf("Exponential (shape=1) hazard should be constant at rate=%v, got h1=%v h2=%v", rate, h1, h2)
	}
}

func TestGammaMeanVar(t *testing.T) {
	shape, rate := 4.0, 2.0
	if got := GammaMean(shape, rate); !approxEqual(got, 2.0, 1e-9) {
		t.Errorf("GammaMean = %v, want 2.0", got)
	}
	if got := GammaVar(shape, rate); !approxEqual(got, 1.0, 1e-9) {
		t.Errorf("GammaVar = %v, want 1.0", got)
	}
}

func TestGammaP_SeriesAndContinuedFractionAgreeNearCrossover(t *testing.T) {
	a := 5.0
	x := a + 1 // crossover boundary
	pSeries := gammaIncSeries(a, x-0.01)
	pCF := 1 - gammaIncCF(a, x+0.01)
	if !approxEqual(pSeries, pCF, 1e-4) {
		t.Errorf("series/CF mismatch near crossover: series=%v cf=%v", pSeries, pCF)
	}
}

func TestGammaP_ComplementsQ(t *testing.T) {
	a, x := 3.0, 2.5
	p := GammaP(a, x)
	q := GammaQ(a, x)
	if !approxEqual(p+q, 1.0, 1e-9) {
		t.Errorf("P+Q = %v, want 1.0", p+q)
	}
}
