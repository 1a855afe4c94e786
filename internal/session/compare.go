package session

import (
	"fmt"
	"sort"
	"time"
)

// TrendDirection is the direction of a value's change across two sessions.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

func trendFromDelta(delta int64) TrendDirection {
	switch {
	case delta > 0:
		return TrendIncreasing
	case delta < 0:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// ClassChange is the count change for one classification category.
type ClassChange struct {
	Classification string
	OldCount       int
	NewCount       int
	Delta          int64
	Direction      TrendDirection
}

// ClassDistributionComparison compares per-class process counts across two
// sessions.
type ClassDistributionComparison struct {
	OldCounts map[string]int
	NewCounts map[string]int
	Changes   []ClassChange
}

// ActionChange is the count change for one recommended-action category.
type ActionChange struct {
	Action    string
	OldCount  int
	NewCount  int
	Delta     int64
	Direction TrendDirection
}

// ActionDistributionComparison compares per-action recommendation counts
// across two sessions.
type ActionDistributionComparison struct {
	OldCounts map[string]int
	NewCounts map[string]int
	Changes   []ActionChange
}

// RecurringOffender is a process present (by start identifier) in both
// sessions that was actionable in at least one of them.
type RecurringOffender struct {
	StartID           string
	PID               uint32
	OldClassification string
	NewClassification string
	OldScore          uint32
	NewScore          uint32
	ScoreTrend        TrendDirection
	Explanation       string
}

// DriftSummary aggregates score and posterior drift across all processes
// present in both sessions.
type DriftSummary struct {
	MeanScoreDrift     float64
	MedianScoreDrift   float64
	WorsenedCount      int
	ImprovedCount      int
	MeanAbandonedDrift float64
	OverallTrend       TrendDirection
}

// ComparisonReport is the full comparison between two sessions.
type ComparisonReport struct {
	OldSessionID       string
	NewSessionID       string
	GeneratedAt        time.Time
	DiffSummary        DiffSummary
	ClassDistribution  ClassDistributionComparison
	ActionDistribution ActionDistributionComparison
	RecurringOffenders []RecurringOffender
	DriftSummary       DriftSummary
}

// GenerateComparisonReport builds a ComparisonReport from a precomputed
// SessionDiff and the inference snapshots of both sessions.
func GenerateComparisonReport(diff SessionDiff, oldInfs, newInfs []InferenceSnapshot) ComparisonReport {
	return ComparisonReport{
		OldSessionID:       diff.OldSessionID,
		NewSessionID:       diff.NewSessionID,
		GeneratedAt:        time.Now().UTC(),
		DiffSummary:        diff.Summary,
		ClassDistribution:  computeClassDistribution(oldInfs, newInfs),
		ActionDistribution: computeActionDistribution(oldInfs, newInfs),
		RecurringOffenders: findRecurringOffenders(diff, oldInfs, newInfs),
		DriftSummary:       computeDriftSummary(diff, oldInfs, newInfs),
	}
}

func countBy(infs []InferenceSnapshot, keyFn func(InferenceSnapshot) string) map[string]int {
	counts := make(map[string]int)
	for _, inf := range infs {
		counts[keyFn(inf)]++
	}
	return counts
}

func sortedUnionKeys(a, b map[string]int) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func computeClassDistribution(old, new []InferenceSnapshot) ClassDistributionComparison {
	oldCounts := countBy(old, func(i InferenceSnapshot) string { return i.Classification })
	newCounts := countBy(new, func(i InferenceSnapshot) string { return i.Classification })

	var changes []ClassChange
	for _, class := range sortedUnionKeys(oldCounts, newCounts) {
		oc, nc := oldCounts[class], newCounts[class]
		delta := int64(nc - oc)
		changes = append(changes, ClassChange{
			Classification: class,
			OldCount:       oc,
			NewCount:       nc,
			Delta:          delta,
			Direction:      trendFromDelta(delta),
		})
	}
	return ClassDistributionComparison{OldCounts: oldCounts, NewCounts: newCounts, Changes: changes}
}

func computeActionDistribution(old, new []InferenceSnapshot) ActionDistributionComparison {
	oldCounts := countBy(old, func(i InferenceSnapshot) string { return i.RecommendedAction })
	newCounts := countBy(new, func(i InferenceSnapshot) string { return i.RecommendedAction })

	var changes []ActionChange
	for _, action := range sortedUnionKeys(oldCounts, newCounts) {
		oc, nc := oldCounts[action], newCounts[action]
		delta := int64(nc - oc)
		changes = append(changes, ActionChange{
			Action:    action,
			OldCount:  oc,
			NewCount:  nc,
			Delta:     delta,
			Direction: trendFromDelta(delta),
		})
	}
	return ActionDistributionComparison{OldCounts: oldCounts, NewCounts: newCounts, Changes: changes}
}

func findRecurringOffenders(diff SessionDiff, oldInfs, newInfs []InferenceSnapshot) []RecurringOffender {
	oldByID := make(map[string]InferenceSnapshot, len(oldInfs))
	for _, i := range oldInfs {
		oldByID[i.StartID] = i
	}
	newByID := make(map[string]InferenceSnapshot, len(newInfs))
	for _, i := range newInfs {
		newByID[i.StartID] = i
	}

	var offenders []RecurringOffender
	for _, delta := range diff.Deltas {
		if delta.Kind == DeltaNew || delta.Kind == DeltaResolved {
			continue
		}
		oldInf, hasOld := oldByID[delta.StartID]
		newInf, hasNew := newByID[delta.StartID]
		if !hasOld || !hasNew {
			continue
		}

		actionableOld := oldInf.RecommendedAction != "keep"
		actionableNew := newInf.RecommendedAction != "keep"
		if !actionableOld && !actionableNew {
			continue
		}

		scoreDrift := int64(newInf.Score) - int64(oldInf.Score)
		var explanation string
		switch {
		case actionableOld && actionableNew:
			explanation = fmt.Sprintf("Flagged in both sessions (%s→%s), score %d→%d",
				oldInf.Classification, newInf.Classification, oldInf.Score, newInf.Score)
		case actionableNew:
			explanation = fmt.Sprintf("Newly flagged as %s (was %s)", newInf.Classification, oldInf.Classification)
		default:
			explanation = fmt.Sprintf("Previously flagged as %s (now %s)", oldInf.Classification, newInf.Classification)
		}

		offenders = append(offenders, RecurringOffender{
			StartID:           delta.StartID,
			PID:               delta.PID,
			OldClassification: oldInf.Classification,
			NewClassification: newInf.Classification,
			OldScore:          oldInf.Score,
			NewScore:          newInf.Score,
			ScoreTrend:        trendFromDelta(scoreDrift),
			Explanation:       explanation,
		})
	}

	sort.Slice(offenders, func(i, j int) bool { return offenders[i].NewScore > offenders[j].NewScore })
	return offenders
}

func computeDriftSummary(diff SessionDiff, oldInfs, newInfs []InferenceSnapshot) DriftSummary {
	oldByID := make(map[string]InferenceSnapshot, len(oldInfs))
	for _, i := range oldInfs {
		oldByID[i.StartID] = i
	}
	newByID := make(map[string]InferenceSnapshot, len(newInfs))
	for _, i := range newInfs {
		newByID[i.StartID] = i
	}

	var scoreDrifts, abandonedDrifts []float64
	var worsened, improved int
	for _, delta := range diff.Deltas {
		if delta.Kind == DeltaNew || delta.Kind == DeltaResolved {
			continue
		}
		oldInf, hasOld := oldByID[delta.StartID]
		newInf, hasNew := newByID[delta.StartID]
		if !hasOld || !hasNew {
			continue
		}
		sd := float64(newInf.Score) - float64(oldInf.Score)
		scoreDrifts = append(scoreDrifts, sd)
		abandonedDrifts = append(abandonedDrifts, newInf.PosteriorAbandoned-oldInf.PosteriorAbandoned)
		switch {
		case sd > 0:
			worsened++
		case sd < 0:
			improved++
		}
	}

	meanScore := mean(scoreDrifts)
	medianScore := median(scoreDrifts)
	meanAbandoned := mean(abandonedDrifts)

	var overall TrendDirection
	switch {
	case meanScore > 2.0:
		overall = TrendIncreasing
	case meanScore < -2.0:
		overall = TrendDecreasing
	default:
		overall = TrendStable
	}

	return DriftSummary{
		MeanScoreDrift:     meanScore,
		MedianScoreDrift:   medianScore,
		WorsenedCount:      worsened,
		ImprovedCount:      improved,
		MeanAbandonedDrift: meanAbandoned,
		OverallTrend:       overall,
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2.0
	}
	return sorted[mid]
}
