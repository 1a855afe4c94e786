package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/processtriage/pttriage/internal/decision"
	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/policy"
	"github.com/processtriage/pttriage/internal/priors"
	"github.com/processtriage/pttriage/internal/storage"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "pttriage.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pol := policy.Default()
	pr := priors.Default()

	o := New(Config{
		ProcRoot: t.TempDir(),
		NodeID:   "test-node",
	}, db, &pol, &pr, nil, nil, nil, nil, zaptest.NewLogger(t))

	return o, db
}

func TestSnapshotPersistsEmptyScan(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	snap, err := o.Snapshot(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Processes) != 0 {
		t.Errorf("expected no processes from an empty proc root, got %d", len(snap.Processes))
	}

	reloaded, err := o.loadSnapshot("sess-1")
	if err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}
	if reloaded.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", reloaded.SessionID)
	}
}

func TestPlanProducesKeepForUsefulProcess(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	snap := &Snapshot{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     "sess-2",
		Processes: []ProcessSnapshot{
			{
				PID:     100,
				Cmdline: "nginx -g daemon off;",
				Posterior: inference.ClassScores{
					Useful: 0.95, UsefulBad: 0.03, Abandoned: 0.01, Zombie: 0.01,
				},
			},
		},
	}
	if err := o.persistSnapshot("sess-2", snap); err != nil {
		t.Fatalf("persistSnapshot: %v", err)
	}

	plan, err := o.Plan("sess-2", false, false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Candidates) != 1 {
		t.Fatalf("len(Candidates) = %d, want 1", len(plan.Candidates))
	}
	cand := plan.Candidates[0]
	if cand.FinalAction.String() != "keep" {
		t.Errorf("FinalAction = %v, want keep for a high-confidence useful process", cand.FinalAction)
	}
	if cand.GuardrailBlocked {
		t.Error("did not expect a guardrail block for a plain keep decision")
	}
}

func TestPlanBlocksKillOnGuardrailForYoungProcess(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	writeProcFile(t, o.procRoot, "uptime", "100.0 0\n")
	o.clockTk = 100

	snap := &Snapshot{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     "sess-3",
		Processes: []ProcessSnapshot{
			{
				PID:            200,
				PPID:           1,
				Cmdline:        "leftover-batch-job",
				StartTimeTicks: 9990 * 100, // started ~10s before the 100s uptime snapshot
				Posterior: inference.ClassScores{
					Useful: 0.02, UsefulBad: 0.02, Abandoned: 0.95, Zombie: 0.01,
				},
			},
		},
	}
	if err := o.persistSnapshot("sess-3", snap); err != nil {
		t.Fatalf("persistSnapshot: %v", err)
	}

	plan, err := o.Plan("sess-3", false, false)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	cand := plan.Candidates[0]
	if cand.FinalAction.String() == "kill" && !cand.GuardrailBlocked {
		t.Error("a process younger than the policy's min age should never resolve to an unblocked kill")
	}
}

func TestApplySkipsDryRun(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	plan := &Plan{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     "sess-4",
		DryRun:        true,
		Candidates: []CandidateDecision{
			{PID: 300, FinalAction: decision.Kill},
		},
	}
	if err := o.persistPlan("sess-4", plan); err != nil {
		t.Fatalf("persistPlan: %v", err)
	}

	out, err := o.Apply("sess-4")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(out.Actions))
	}
	if !out.Actions[0].Skipped || out.Actions[0].SkipReason != "dry_run" {
		t.Errorf("expected a dry_run skip, got skipped=%v reason=%q", out.Actions[0].Skipped, out.Actions[0].SkipReason)
	}
}

func TestApplySkipsGuardrailBlocked(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	plan := &Plan{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     "sess-5",
		Candidates: []CandidateDecision{
			{PID: 301, FinalAction: decision.Kill, GuardrailBlocked: true, GuardrailRule: "min_process_age"},
		},
	}
	if err := o.persistPlan("sess-5", plan); err != nil {
		t.Fatalf("persistPlan: %v", err)
	}

	out, err := o.Apply("sess-5")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.Actions[0].Skipped {
		t.Error("expected the guardrail-blocked candidate to be skipped")
	}
	if out.Actions[0].SkipReason != "guardrail_blocked: min_process_age" {
		t.Errorf("SkipReason = %q, want it to carry the blocking rule", out.Actions[0].SkipReason)
	}
}

func TestVerifySkipsSkippedActions(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	out := &ApplyOutcome{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     "sess-6",
		Actions: []AppliedAction{
			{PID: 400, Skipped: true, SkipReason: "dry_run"},
		},
	}
	if err := o.persistApply("sess-6", out); err != nil {
		t.Fatalf("persistApply: %v", err)
	}

	verify, err := o.Verify("sess-6")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(verify.Findings) != 0 {
		t.Errorf("expected no findings for an entirely-skipped apply, got %d", len(verify.Findings))
	}
}

func TestCapabilitiesReportsPlatform(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	caps := o.Capabilities()
	if caps.Platform == "" {
		t.Error("expected a non-empty platform name")
	}
	if len(caps.AvailableActions) == 0 {
		t.Error("expected a non-empty action list")
	}
	if caps.GossipEnabled {
		t.Error("expected GossipEnabled=false when Config.GossipEnabled was never set")
	}
}

func TestCapabilitiesReportsGossipEnabled(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "pttriage.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	pol := policy.Default()
	pr := priors.Default()

	o := New(Config{ProcRoot: t.TempDir(), NodeID: "n", GossipEnabled: true},
		db, &pol, &pr, nil, nil, nil, nil, zaptest.NewLogger(t))

	if !o.Capabilities().GossipEnabled {
		t.Error("expected GossipEnabled=true when Config.GossipEnabled was set")
	}
}

func TestTickRunsFullPipelineDryRun(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	if err := o.Tick(context.Background(), "sess-7", true, false); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if _, err := o.loadSnapshot("sess-7"); err != nil {
		t.Errorf("expected a persisted snapshot after Tick: %v", err)
	}
	if _, err := o.loadPlan("sess-7"); err != nil {
		t.Errorf("expected a persisted plan after Tick: %v", err)
	}
}
