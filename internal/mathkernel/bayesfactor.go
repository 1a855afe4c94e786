package mathkernel

import "math"

// EvidenceStrength buckets a Bayes factor's magnitude onto the Jeffreys
// scale. Ordering matters: callers compare strength levels with >= to ask
// "at least this convincing", so the zero value must be the weakest bucket.
type EvidenceStrength uint8

const (
	EvidenceNegligible EvidenceStrength = iota
	EvidenceSubstantial
	EvidenceStrong
	EvidenceVeryStrong
	EvidenceDecisive
)

// String returns the human-readable Jeffreys-scale label.
func (s EvidenceStrength) String() string {
	switch s {
	case EvidenceNegligible:
		return "negligible"
	case EvidenceSubstantial:
		return "substantial"
	case EvidenceStrong:
		return "strong"
	case EvidenceVeryStrong:
		return "very_strong"
	case EvidenceDecisive:
		return "decisive"
	default:
		return "unknown"
	}
}

// Jeffreys-scale breakpoints, expressed as log10(Bayes factor) thresholds on
// the magnitude (direction-agnostic) of the evidence: <0.5 not worth
// mentioning, 0.5-1 substantial, 1-1.5 strong, 1.5-2 very strong, >=2
// decisive.
const (
	jeffreysSubstantial = 0.5
	jeffreysStrong      = 1.0
	jeffreysVeryStrong  = 1.5
	jeffreysDecisive    = 2.0
)

// EvidenceSummary packages a log Bayes factor with its linear-domain value,
// bit-equivalent (MDL) interpretation, and Jeffreys-scale strength bucket.
type EvidenceSummary struct {
	LogBF     float64
	EValue    float64
	DeltaBits float64
	Strength  EvidenceStrength
}

// EvidenceSummaryFromLogBF classifies a natural-log Bayes factor (positive
// favors the hypothesis under test, negative favors the alternative) into an
// EvidenceSummary. The strength bucket is based on the magnitude of the
// evidence regardless of direction; EValue and DeltaBits retain the sign.
func EvidenceSummaryFromLogBF(logBF float64) EvidenceSummary {
	if math.IsNaN(logBF) {
		return EvidenceSummary{LogBF: math.NaN(), EValue: math.NaN(), DeltaBits: math.NaN(), Strength: EvidenceNegligible}
	}

	eValue := math.Exp(logBF)
	deltaBits := logBF / math.Ln2

	log10BF := math.Abs(logBF) / math.Ln10
	var strength EvidenceStrength
	switch {
	case log10BF >= jeffreysDecisive:
		strength = EvidenceDecisive
	case log10BF >= jeffreysVeryStrong:
		strength = EvidenceVeryStrong
	case log10BF >= jeffreysStrong:
		strength = EvidenceStrong
	case log10BF >= jeffreysSubstantial:
		strength = EvidenceSubstantial
	default:
		strength = EvidenceNegligible
	}

	return EvidenceSummary{
		LogBF:     logBF,
		EValue:    eValue,
		DeltaBits: deltaBits,
		Strength:  strength,
	}
}
