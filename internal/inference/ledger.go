package inference

import (
	"fmt"
	"sort"

	"github.com/processtriage/pttriage/internal/mathkernel"
)

// Classification is the argmax class of a posterior computation.
type Classification int

const (
	Useful Classification = iota
	UsefulBad
	Abandoned
	Zombie
)

// Label returns the stable, lowercase snake_case name used in logs, CLI
// output, and metric labels.
func (c Classification) Label() string {
	switch c {
	case Useful:
		return "useful"
	case UsefulBad:
		return "useful_bad"
	case Abandoned:
		return "abandoned"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

func (c Classification) String() string { return c.Label() }

// ClassificationFromPosterior returns the argmax class of a posterior
// score vector, defaulting to Useful on a degenerate (all-equal, NaN-free)
// tie.
func ClassificationFromPosterior(scores ClassScores) Classification {
	best := Useful
	bestValue := scores.Useful
	for _, candidate := range []struct {
		class Classification
		value float64
	}{
		{UsefulBad, scores.UsefulBad},
		{Abandoned, scores.Abandoned},
		{Zombie, scores.Zombie},
	} {
		if candidate.value > bestValue {
			best = candidate.class
			bestValue = candidate.value
		}
	}
	return best
}

// Confidence buckets the winning posterior probability into a
// human-readable tier.
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
	VeryHigh
)

func (c Confidence) Label() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case VeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

func (c Confidence) String() string { return c.Label() }

// ConfidenceFromMaxPosterior buckets a winning posterior probability p.
func ConfidenceFromMaxPosterior(p float64) Confidence {
	switch {
	case p >= 0.95:
		return VeryHigh
	case p >= 0.80:
		return High
	case p >= 0.60:
		return Medium
	default:
		return Low
	}
}

// Direction describes whether a feature's evidence supports or opposes the
// predicted classification relative to a reference class.
type Direction int

const (
	TowardPredicted Direction = iota
	TowardReference
	Neutral
)

func directionFromLogBF(logBF float64) Direction {
	const epsilon = 1e-300
	switch {
	case logBF > epsilon:
		return TowardPredicted
	case logBF < -epsilon:
		return TowardReference
	default:
		return Neutral
	}
}

func (d Direction) String() string {
	switch d {
	case TowardPredicted:
		return "toward_predicted"
	case TowardReference:
		return "toward_reference"
	default:
		return "neutral"
	}
}

// BayesFactorEntry is one feature's evidentiary contribution to the
// classification, expressed as a Bayes factor between the predicted and
// reference classes.
type BayesFactorEntry struct {
	Feature     string
	LogBF       float64
	BF          float64
	DeltaBits   float64
	Direction   Direction
	Strength    mathkernel.EvidenceStrength
	Description string
}

var featureGlyphs = map[string]string{
	"cpu":              "🔥",
	"runtime":          "⏱️",
	"orphan":           "👻",
	"tty":              "💀",
	"net":              "🌐",
	"io_active":        "⚡",
	"state_flag":       "🚦",
	"command_category": "📦",
	"prior":            "📊",
}

// Glyph returns the display glyph for a feature name, or a question mark
// for features outside the fixed evidence set.
func Glyph(feature string) string {
	if g, ok := featureGlyphs[feature]; ok {
		return g
	}
	return "❓"
}

// EvidenceLedger explains one classification decision as a ranked list of
// per-feature Bayes factors plus a human-readable why-summary, for galaxy-
// brain-mode display and audit trails.
type EvidenceLedger struct {
	PID            *uint32
	Classification Classification
	Posterior      ClassScores
	Confidence     Confidence
	BayesFactors   []BayesFactorEntry
	TopEvidence    []string
	EvidenceGlyphs map[string]string
	WhySummary     string
}

// LedgerFromPosteriorResult builds an EvidenceLedger from a ComputePosterior
// result. referenceClass defaults to Useful when nil.
func LedgerFromPosteriorResult(result *PosteriorResult, pid *uint32, referenceClass *Classification) *EvidenceLedger {
	classification := ClassificationFromPosterior(result.Posterior)
	reference := Useful
	if referenceClass != nil {
		reference = *referenceClass
	}
	maxPosterior := maxPosteriorValue(result.Posterior)
	confidence := ConfidenceFromMaxPosterior(maxPosterior)

	bayesFactors := make([]BayesFactorEntry, len(result.EvidenceTerms))
	for i, term := range result.EvidenceTerms {
		bayesFactors[i] = computeBFEntry(term, classification, reference)
	}

	sort.SliceStable(bayesFactors, func(i, j int) bool {
		return absFloat(bayesFactors[i].LogBF) > absFloat(bayesFactors[j].LogBF)
	})

	var topEvidence []string
	for _, bf := range bayesFactors {
		if bf.Strength < mathkernel.EvidenceSubstantial {
			continue
		}
		topEvidence = append(topEvidence, formatEvidenceSummary(bf))
		if len(topEvidence) == 3 {
			break
		}
	}

	glyphs := make(map[string]string, len(bayesFactors))
	for _, bf := range bayesFactors {
		glyphs[bf.Feature] = Glyph(bf.Feature)
	}

	whySummary := generateWhySummary(bayesFactors, classification, confidence)

	return &EvidenceLedger{
		PID:            pid,
		Classification: classification,
		Posterior:      result.Posterior,
		Confidence:     confidence,
		BayesFactors:   bayesFactors,
		TopEvidence:    topEvidence,
		EvidenceGlyphs: glyphs,
		WhySummary:     whySummary,
	}
}

// TopFactors returns the first n Bayes factor entries (already sorted by
// descending magnitude), clamped to the number actually present.
func (l *EvidenceLedger) TopFactors(n int) []BayesFactorEntry {
	if n > len(l.BayesFactors) {
		n = len(l.BayesFactors)
	}
	return l.BayesFactors[:n]
}

// SupportingEvidence returns entries whose direction favors the predicted
// classification.
func (l *EvidenceLedger) SupportingEvidence() []BayesFactorEntry {
	var out []BayesFactorEntry
	for _, bf := range l.BayesFactors {
		if bf.Direction == TowardPredicted {
			out = append(out, bf)
		}
	}
	return out
}

// OpposingEvidence returns entries whose direction favors the reference
// class over the prediction.
func (l *EvidenceLedger) OpposingEvidence() []BayesFactorEntry {
	var out []BayesFactorEntry
	for _, bf := range l.BayesFactors {
		if bf.Direction == TowardReference {
			out = append(out, bf)
		}
	}
	return out
}

// HasStrongSupport reports whether any supporting feature reaches at least
// "strong" on the Jeffreys scale.
func (l *EvidenceLedger) HasStrongSupport() bool {
	for _, bf := range l.BayesFactors {
		if bf.Direction == TowardPredicted && bf.Strength >= mathkernel.EvidenceStrong {
			return true
		}
	}
	return false
}

func computeBFEntry(term EvidenceTerm, predicted, reference Classification) BayesFactorEntry {
	logLikPredicted := classLogLik(term.LogLikelihood, predicted)
	logLikReference := classLogLik(term.LogLikelihood, reference)
	logBF := logLikPredicted - logLikReference
	summary := mathkernel.EvidenceSummaryFromLogBF(logBF)

	return BayesFactorEntry{
		Feature:   term.Feature,
		LogBF:     logBF,
		BF:        summary.EValue,
		DeltaBits: summary.DeltaBits,
		Direction: directionFromLogBF(logBF),
		Strength:  summary.Strength,
	}
}

func classLogLik(scores ClassScores, class Classification) float64 {
	switch class {
	case Useful:
		return scores.Useful
	case UsefulBad:
		return scores.UsefulBad
	case Abandoned:
		return scores.Abandoned
	case Zombie:
		return scores.Zombie
	default:
		return scores.Useful
	}
}

func maxPosteriorValue(p ClassScores) float64 {
	max := p.Useful
	for _, v := range []float64{p.UsefulBad, p.Abandoned, p.Zombie} {
		if v > max {
			max = v
		}
	}
	return max
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func formatEvidenceSummary(bf BayesFactorEntry) string {
	direction := "opposes"
	if bf.Direction == TowardPredicted {
		direction = "supports"
	}
	return fmt.Sprintf("%s %s %s classification (BF=%.1f, %s)", Glyph(bf.Feature), bf.Feature, direction, bf.BF, bf.Strength.String())
}

func generateWhySummary(bayesFactors []BayesFactorEntry, classification Classification, confidence Confidence) string {
	var supporting, opposing []string
	for _, bf := range bayesFactors {
		if bf.Strength < mathkernel.EvidenceSubstantial {
			continue
		}
		switch bf.Direction {
		case TowardPredicted:
			if len(supporting) < 3 {
				supporting = append(supporting, bf.Feature)
			}
		case TowardReference:
			if len(opposing) < 2 {
				opposing = append(opposing, bf.Feature)
			}
		}
	}

	parts := []string{fmt.Sprintf("Classified as %s with %s confidence.", classification, confidence)}

	if len(supporting) > 0 {
		parts = append(parts, fmt.Sprintf("Key supporting evidence: %s.", joinComma(supporting)))
	}
	if len(opposing) > 0 {
		parts = append(parts, fmt.Sprintf("Opposing evidence: %s.", joinComma(opposing)))
	}
	if len(supporting) == 0 && len(opposing) == 0 {
		parts = append(parts, "Classification based primarily on prior probabilities.")
	}

	result := parts[0]
	for _, p := range parts[1:] {
		result += " " + p
	}
	return result
}

func joinComma(items []string) string {
	result := ""
	for i, item := range items {
		if i > 0 {
			result += ", "
		}
		result += item
	}
	return result
}
