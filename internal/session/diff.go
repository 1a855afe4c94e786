package session

import "sort"

// DeltaKind classifies how a candidate process changed between two sessions.
type DeltaKind string

const (
	DeltaNew       DeltaKind = "new"
	DeltaResolved  DeltaKind = "resolved"
	DeltaChanged   DeltaKind = "changed"
	DeltaUnchanged DeltaKind = "unchanged"
)

// ProcessSnapshot is the identity-bearing subset of a scanned process,
// persisted per session for later diffing.
type ProcessSnapshot struct {
	PID     uint32
	PPID    uint32
	StartID string
	Comm    string
	Cmd     string
}

// InferenceSnapshot is the classification result for one process within a
// session, persisted alongside its ProcessSnapshot.
type InferenceSnapshot struct {
	PID                uint32
	StartID            string
	Classification     string
	PosteriorAbandoned float64
	RecommendedAction  string
	Score              uint32
}

// Delta describes one process's change between two sessions, keyed by its
// start identifier (stable across a rescan, unlike PID alone).
type Delta struct {
	StartID string
	PID     uint32
	Kind    DeltaKind
}

// DiffSummary counts deltas by kind.
type DiffSummary struct {
	NewCount       int
	ResolvedCount  int
	ChangedCount   int
	UnchangedCount int
}

// SessionDiff is the full set of deltas between two sessions.
type SessionDiff struct {
	OldSessionID string
	NewSessionID string
	Summary      DiffSummary
	Deltas       []Delta
}

// DiffConfig tunes what counts as a "changed" (as opposed to "unchanged")
// process between two sessions with matching identity.
type DiffConfig struct {
	// ScoreChangeThreshold: a process is marked Changed rather than
	// Unchanged when its absolute score delta exceeds this value or its
	// classification changes.
	ScoreChangeThreshold uint32
}

// DefaultDiffConfig returns a DiffConfig that treats any score movement or
// classification change as significant.
func DefaultDiffConfig() DiffConfig {
	return DiffConfig{ScoreChangeThreshold: 0}
}

// ComputeDiff compares two sessions' process and inference snapshots,
// matching processes by start identifier. A process present only in the
// old set is Resolved; present only in the new set is New; present in both
// with no material change is Unchanged; otherwise Changed.
func ComputeDiff(oldSessionID, newSessionID string,
	oldProcs []ProcessSnapshot, oldInfs []InferenceSnapshot,
	newProcs []ProcessSnapshot, newInfs []InferenceSnapshot,
	cfg DiffConfig) SessionDiff {

	oldProcByID := make(map[string]ProcessSnapshot, len(oldProcs))
	for _, p := range oldProcs {
		oldProcByID[p.StartID] = p
	}
	newProcByID := make(map[string]ProcessSnapshot, len(newProcs))
	for _, p := range newProcs {
		newProcByID[p.StartID] = p
	}
	oldInfByID := make(map[string]InferenceSnapshot, len(oldInfs))
	for _, i := range oldInfs {
		oldInfByID[i.StartID] = i
	}
	newInfByID := make(map[string]InferenceSnapshot, len(newInfs))
	for _, i := range newInfs {
		newInfByID[i.StartID] = i
	}

	ids := make(map[string]struct{}, len(oldProcByID)+len(newProcByID))
	for id := range oldProcByID {
		ids[id] = struct{}{}
	}
	for id := range newProcByID {
		ids[id] = struct{}{}
	}

	var deltas []Delta
	var summary DiffSummary
	for id := range ids {
		_, inOld := oldProcByID[id]
		newProc, inNew := newProcByID[id]

		switch {
		case inOld && !inNew:
			deltas = append(deltas, Delta{StartID: id, PID: oldProcByID[id].PID, Kind: DeltaResolved})
			summary.ResolvedCount++
		case !inOld && inNew:
			deltas = append(deltas, Delta{StartID: id, PID: newProc.PID, Kind: DeltaNew})
			summary.NewCount++
		default:
			oldInf, hasOldInf := oldInfByID[id]
			newInf, hasNewInf := newInfByID[id]
			kind := DeltaUnchanged
			if hasOldInf != hasNewInf {
				kind = DeltaChanged
			} else if hasOldInf && hasNewInf {
				if oldInf.Classification != newInf.Classification {
					kind = DeltaChanged
				} else if absDeltaU32(oldInf.Score, newInf.Score) > cfg.ScoreChangeThreshold {
					kind = DeltaChanged
				}
			}
			deltas = append(deltas, Delta{StartID: id, PID: newProc.PID, Kind: kind})
			switch kind {
			case DeltaChanged:
				summary.ChangedCount++
			default:
				summary.UnchangedCount++
			}
		}
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].StartID < deltas[j].StartID })

	return SessionDiff{
		OldSessionID: oldSessionID,
		NewSessionID: newSessionID,
		Summary:      summary,
		Deltas:       deltas,
	}
}

func absDeltaU32(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
