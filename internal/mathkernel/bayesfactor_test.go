package mathkernel

import (
	"math"
	"testing"
)

func TestEvidenceSummaryFromLogBF_Negligible(t *testing.T) {
	s := EvidenceSummaryFromLogBF(0.1)
	if s.Strength != EvidenceNegligible {
		t.Errorf("small log_bf should be negligible, got %v", s.Strength)
	}
}

func TestEvidenceSummaryFromLogBF_Decisive(t *testing.T) {
	// log10(BF) >= 2 means BF >= 100, i.e. natural-log BF >= 2*ln(10).
	s := EvidenceSummaryFromLogBF(2 * math.Ln10 * 1.1)
	if s.Strength != EvidenceDecisive {
		t.Errorf("large log_bf should be decisive, got %v", s.Strength)
	}
}

func TestEvidenceSummaryFromLogBF_SignPreservedInEValueAndBits(t *testing.T) {
	s := EvidenceSummaryFromLogBF(-3)
	if s.EValue >= 1 {
		t.Errorf("negative log_bf should give e_value < 1, got %v", s.EValue)
	}
	if s.DeltaBits >= 0 {
		t.Errorf("negative log_bf should give negative delta_bits, got %v", s.DeltaBits)
	}
}

func TestEvidenceSummaryFromLogBF_NaNPropagates(t *testing.T) {
	s := EvidenceSummaryFromLogBF(math.NaN())
	if !math.IsNaN(s.LogBF) || !math.IsNaN(s.EValue) {
		t.Error("NaN input should propagate to NaN fields")
	}
}

func TestEvidenceStrength_StringLabels(t *testing.T) {
	cases := map[EvidenceStrength]string{
		EvidenceNegligible:  "negligible",
		EvidenceSubstantial: "substantial",
		EvidenceStrong:      "strong",
		EvidenceVeryStrong:  "very_strong",
		EvidenceDecisive:    "decisive",
	}
	for strength, want := range cases {
		if got := strength.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", strength, got, want)
		}
	}
}
