// Package escalation dedupes triggers fired by the orchestrator (a
// destructive action failed, a guardrail blocked something, a fleet
// pattern correlated across hosts), batches them by severity so a storm
// of low-severity triggers doesn't spam an operator while a single
// critical one flushes immediately, and persists its counters across
// restarts.
package escalation

// Tier buckets a composite severity score into an operator-facing label.
type Tier uint8

const (
	TierInfo Tier = iota
	TierWarning
	TierCritical
	TierEmergency
)

func (t Tier) String() string {
	switch t {
	case TierInfo:
		return "info"
	case TierWarning:
		return "warning"
	case TierCritical:
		return "critical"
	case TierEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Weights holds the coefficients for the composite severity formula
// S = w1*BlastRadius + w2*(1-Confidence) + w3*GuardrailBlocked + w4*Pressure.
type Weights struct {
	BlastRadius      float64
	Confidence       float64
	GuardrailBlocked float64
	Pressure         float64
}

// DefaultWeights mirrors the original containment engine's default split:
// blast radius dominates, confidence and pressure contribute equally, a
// guardrail block alone is enough to push into warning territory.
func DefaultWeights() Weights {
	return Weights{BlastRadius: 0.4, Confidence: 0.2, GuardrailBlocked: 0.2, Pressure: 0.2}
}

// Thresholds are the score boundaries for each tier, strictly increasing.
type Thresholds struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

// DefaultThresholds mirrors the original's PRESSURE/FROZEN/TERMINATED
// boundaries, rescaled to a 0-3 severity tier scheme.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 1.0, Critical: 3.0, Emergency: 6.0}
}

// Inputs holds the four signals the severity formula combines.
type Inputs struct {
	// BlastRadiusMB is the estimated memory/resource footprint of the
	// affected process or fleet pattern.
	BlastRadiusMB float64
	// Confidence is the decision engine's posterior confidence in its
	// classification (0.0-1.0); low confidence raises severity because an
	// uncertain destructive action deserves more scrutiny.
	Confidence float64
	// GuardrailBlocked is 1.0 if a guardrail refused the action outright.
	GuardrailBlocked float64
	// PressureScore is the EWMA-smoothed repeat-trigger pressure for this
	// dedupe key (from Accumulator).
	PressureScore float64
}

// ComputeSeverity computes S = w1*BlastRadius + w2*(1-Confidence) + w3*GuardrailBlocked + w4*Pressure.
func ComputeSeverity(in Inputs, w Weights) float64 {
	return w.BlastRadius*in.BlastRadiusMB +
		w.Confidence*(1.0-in.Confidence) +
		w.GuardrailBlocked*in.GuardrailBlocked +
		w.Pressure*in.PressureScore
}

// TierFor buckets a severity score into its tier, evaluated highest first.
func TierFor(severity float64, t Thresholds) Tier {
	switch {
	case severity >= t.Emergency:
		return TierEmergency
	case severity >= t.Critical:
		return TierCritical
	case severity >= t.Warning:
		return TierWarning
	default:
		return TierInfo
	}
}
