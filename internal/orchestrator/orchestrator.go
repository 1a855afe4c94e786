// Package orchestrator wires scanning, classification, decisioning, and
// action execution into the scan -> decide -> apply -> verify pipeline the
// CLI and the long-running agent both drive, persisting each stage's
// output so a later invocation (a separate process, for the CLI's
// multi-step workflow) can pick up where the last one left off.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/processtriage/pttriage/internal/action"
	"github.com/processtriage/pttriage/internal/budget"
	"github.com/processtriage/pttriage/internal/collect"
	"github.com/processtriage/pttriage/internal/decision"
	"github.com/processtriage/pttriage/internal/escalation"
	"github.com/processtriage/pttriage/internal/fleet"
	"github.com/processtriage/pttriage/internal/inference"
	"github.com/processtriage/pttriage/internal/observability"
	"github.com/processtriage/pttriage/internal/policy"
	"github.com/processtriage/pttriage/internal/priors"
	"github.com/processtriage/pttriage/internal/redact"
	"github.com/processtriage/pttriage/internal/storage"
)

// Orchestrator holds every stage of the pipeline and the shared state
// (budget, escalation manager, fleet coordinator) that spans ticks.
type Orchestrator struct {
	procRoot string
	bootID   string
	nodeID   string
	clockTk  uint64

	log    *zap.Logger
	db     *storage.DB
	pol    *policy.Policy
	priors *priors.Priors

	executor   *action.Executor
	escalation *escalation.Manager
	fdr        *fleet.Coordinator
	correlator *fleet.Correlator
	bucket     *budget.Bucket
	metrics    *observability.Metrics

	correlationMinHosts atomic.Int32
	robotMode           bool
	gossipEnabled       bool
}

// Config bundles the constructor arguments that don't already have their
// own dedicated config structs.
type Config struct {
	ProcRoot            string
	NodeID              string
	ClockTicksPerSecond uint64
	CorrelationMinHosts int
	RobotMode           bool
	InitialAlpha        float64
	GossipEnabled       bool
}

// New builds an Orchestrator. The caller owns the lifetime of every
// injected dependency (db, bucket, metrics) and is responsible for closing
// them.
func New(cfg Config, db *storage.DB, pol *policy.Policy, pr *priors.Priors,
	esc *escalation.Manager, fdr *fleet.Coordinator, bucket *budget.Bucket,
	metrics *observability.Metrics, log *zap.Logger) *Orchestrator {

	bootID := readBootID(cfg.ProcRoot)
	clockTk := cfg.ClockTicksPerSecond
	if clockTk == 0 {
		clockTk = 100
	}

	if fdr != nil {
		alpha := cfg.InitialAlpha
		if alpha == 0 {
			alpha = 1.0
		}
		fdr.RegisterHost(cfg.NodeID, alpha)
	}

	o := &Orchestrator{
		procRoot:      cfg.ProcRoot,
		bootID:        bootID,
		nodeID:        cfg.NodeID,
		clockTk:       clockTk,
		log:           log,
		db:            db,
		pol:           pol,
		priors:        pr,
		executor:      action.NewExecutor(),
		escalation:    esc,
		fdr:           fdr,
		correlator:    fleet.NewCorrelator(),
		bucket:        bucket,
		metrics:       metrics,
		robotMode:     cfg.RobotMode,
		gossipEnabled: cfg.GossipEnabled,
	}
	o.correlationMinHosts.Store(int32(cfg.CorrelationMinHosts))
	return o
}

// readBootID reads the kernel's boot UUID, part of the (boot_id, pid,
// start_time_ticks) triple that disambiguates a process identity across
// reboots and PID reuse. An unreadable boot_id (non-Linux, permission
// denied) falls back to "unknown" rather than failing the scan outright.
func readBootID(procRoot string) string {
	raw, err := os.ReadFile(procRoot + "/sys/kernel/random/boot_id")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(raw))
}

// Snapshot performs one full scan pass, classifies every process, computes
// its posterior, and persists the result under sessionID for a later Plan
// call (possibly in a separate process invocation) to read back.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	scanner := collect.NewScanner(o.procRoot, o.bootID, o.clockTk, o.log, 4096)
	records, err := scanner.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	snap := &Snapshot{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     sessionID,
		NodeID:        o.nodeID,
		TakenAt:       time.Now(),
	}

	start := time.Now()
	count := 0
	for rec := range records {
		count++
		verdict := classifySupervision(o.procRoot, rec)
		evidence := buildEvidence(rec, verdict, o.procRoot)

		posterior, err := inference.ComputePosterior(o.priors, evidence)
		if err != nil {
			o.log.Warn("posterior computation failed, skipping process",
				zap.Uint32("pid", rec.Identity.PID), zap.Error(err))
			continue
		}

		snap.Processes = append(snap.Processes, ProcessSnapshot{
			PID:                    rec.Identity.PID,
			PPID:                   rec.PPID,
			Cmdline:                rec.Cmdline,
			StartTimeTicks:         rec.Identity.StartTimeTicks,
			Supervised:             verdict.IsSupervised,
			SupervisorName:         verdict.SupervisorName,
			UnexpectedOrphan:       verdict.UnexpectedReparenting,
			Posterior:              posterior.Posterior,
			LogOddsAbandonedUseful: posterior.LogOddsAbandonedUseful,
			EvidenceTerms:          posterior.EvidenceTerms,
		})

		if o.correlator != nil {
			o.correlator.Observe(o.nodeID, fleet.Signature{CommandHash: commandHash(rec.Cmdline)})
		}
	}

	if o.metrics != nil {
		o.metrics.ScansTotal.Inc()
		o.metrics.ScanDurationSeconds.Observe(time.Since(start).Seconds())
		o.metrics.ProcessesObserved.Set(float64(count))
	}

	if err := o.persistSnapshot(sessionID, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func commandHash(cmdline string) string {
	sum := sha256.Sum256([]byte(cmdline))
	return hex.EncodeToString(sum[:])
}

func (o *Orchestrator) persistSnapshot(sessionID string, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return o.db.PutArtifact(sessionID, artifactKindSnapshot, data)
}

func (o *Orchestrator) loadSnapshot(sessionID string) (*Snapshot, error) {
	data, err := o.db.GetArtifact(sessionID, artifactKindSnapshot)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("no snapshot found for session %s", sessionID)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Plan reads back the session's most recent snapshot and computes a
// candidate decision for every process: expected-loss minimization, an
// optional CVaR risk override, and a guardrail/budget feasibility check —
// without applying anything.
func (o *Orchestrator) Plan(sessionID string, dryRun, shadow bool) (*Plan, error) {
	snap, err := o.loadSnapshot(sessionID)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     sessionID,
		NodeID:        o.nodeID,
		PlannedAt:     time.Now(),
		DryRun:        dryRun,
		Shadow:        shadow,
	}

	tally := action.RunTally{}
	for _, proc := range snap.Processes {
		feasibility := o.actionFeasibility(proc)
		outcome, err := decision.DecideActionWithRecovery(proc.Posterior, o.pol, feasibility, o.priors, 0.1)
		if err != nil {
			o.log.Debug("no feasible decision for process", zap.Uint32("pid", proc.PID), redact.Field("cmdline", proc.Cmdline), zap.Error(err))
			continue
		}

		cand := CandidateDecision{
			PID:           proc.PID,
			Cmdline:       proc.Cmdline,
			Posterior:     proc.Posterior,
			OptimalAction: outcome.OptimalAction,
			FinalAction:   outcome.OptimalAction,
			Rationale:     outcome.Rationale,
		}

		o.applyCVaR(&cand, proc.Posterior, feasibility)
		o.checkGuardrails(&cand, proc, tally)
		if cand.FinalAction == decision.Kill {
			tally.Kills++
		}
		o.checkBudget(&cand)

		if o.metrics != nil {
			o.metrics.DecisionsTotal.WithLabelValues(cand.FinalAction.String()).Inc()
			o.metrics.PosteriorConfidenceHistogram.Observe(maxClassScore(proc.Posterior))
		}
		o.submitFleetEValue(proc)

		plan.Candidates = append(plan.Candidates, cand)
	}

	if err := o.persistPlan(sessionID, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// actionFeasibility disables Restart when no concrete supervisor was
// identified — there is nothing for a Restart to hand the process back to.
func (o *Orchestrator) actionFeasibility(proc ProcessSnapshot) decision.ActionFeasibility {
	if proc.Supervised && proc.SupervisorName != "" {
		return decision.AllowAll()
	}
	return decision.ActionFeasibility{
		Disabled: []decision.DisabledAction{
			{Action: decision.Restart, Reason: "no known supervisor to restart under"},
		},
	}
}

// applyCVaR re-ranks the candidate by CVaR when the trigger conditions
// (robot mode, low posterior confidence, an explicit conservative flag)
// call for it, recording whether it changed the chosen action.
func (o *Orchestrator) applyCVaR(cand *CandidateDecision, posterior inference.ClassScores, feasibility decision.ActionFeasibility) {
	maxPosterior := posterior.Useful
	for _, v := range []float64{posterior.UsefulBad, posterior.Abandoned, posterior.Zombie} {
		if v > maxPosterior {
			maxPosterior = v
		}
	}

	trigger := decision.CvarTrigger{
		RobotMode:            o.robotMode,
		LowConfidence:        maxPosterior < o.pol.CVaR.LowConfidenceThresh,
		ExplicitConservative: false,
	}
	if !trigger.ShouldApply() {
		return
	}

	var feasible []decision.Action
	for _, a := range []decision.Action{decision.Keep, decision.Pause, decision.Throttle, decision.Renice, decision.Restart, decision.Kill} {
		if feasibility.IsAllowed(a) {
			feasible = append(feasible, a)
		}
	}

	outcome, err := decision.DecideWithCVaR(posterior, o.pol, feasible, o.pol.CVaR.Alpha, cand.FinalAction, trigger.Reason())
	if err != nil {
		return
	}
	if outcome.ActionChanged {
		cand.FinalAction = outcome.RiskAdjustedAction
		cand.RiskAdjusted = true
		cand.RiskAdjustReason = outcome.Reason
	}
}

func (o *Orchestrator) checkGuardrails(cand *CandidateDecision, proc ProcessSnapshot, tally action.RunTally) {
	target := action.Target{
		PID:          proc.PID,
		PPID:         proc.PPID,
		Cmdline:      proc.Cmdline,
		StartedAt:    o.startedAtFromTicks(proc.StartTimeTicks),
		HasActiveTTY: false,
	}
	if v := action.CheckGuardrails(cand.FinalAction, target, o.pol.Guardrails, o.pol.DataLossGates, tally); v != nil {
		cand.GuardrailBlocked = true
		cand.GuardrailRule = v.Rule
		if o.metrics != nil {
			o.metrics.GuardrailBlocksTotal.WithLabelValues(v.Rule).Inc()
		}
	}
}

// startedAtFromTicks converts a process's /proc/stat start time (ticks
// since boot) back to a wall-clock time, for the guardrail min-age check.
// Falls back to the zero time (treated as arbitrarily old, i.e. never
// blocked by min age) if uptime can't be read.
func (o *Orchestrator) startedAtFromTicks(startTimeTicks uint64) time.Time {
	uptime, ok := systemUptimeSeconds(o.procRoot)
	if !ok {
		return time.Time{}
	}
	startSeconds := float64(startTimeTicks) / float64(o.clockTk)
	age := uptime - startSeconds
	if age < 0 {
		age = 0
	}
	return time.Now().Add(-time.Duration(age * float64(time.Second)))
}

func maxClassScore(s inference.ClassScores) float64 {
	max := s.Useful
	for _, v := range []float64{s.UsefulBad, s.Abandoned, s.Zombie} {
		if v > max {
			max = v
		}
	}
	return max
}

// submitFleetEValue submits this process's abandoned-posterior as an
// e-value against the fleet-wide FDR budget, scaled against a uniform
// four-class null so E[e] <= 1 under "this process is useful". Errors
// (unregistered host, exhausted budget) are expected and non-fatal: this is
// advisory fleet-wide bookkeeping, not a gate on the local decision.
func (o *Orchestrator) submitFleetEValue(proc ProcessSnapshot) {
	if o.fdr == nil {
		return
	}
	eValue := proc.Posterior.Abandoned / 0.25
	accepted, err := o.fdr.SubmitEValue(o.nodeID, commandHash(proc.Cmdline), eValue)
	outcome := "accepted"
	if err != nil || !accepted {
		outcome = "rejected"
	}
	if o.metrics != nil {
		o.metrics.FleetEValuesTotal.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) checkBudget(cand *CandidateDecision) {
	if o.bucket == nil {
		return
	}
	cost, ok := budget.CostModel[cand.FinalAction]
	if !ok {
		return
	}
	if o.bucket.Remaining() < cost {
		cand.BudgetBlocked = true
	}
}

func (o *Orchestrator) persistPlan(sessionID string, plan *Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	return o.db.PutArtifact(sessionID, artifactKindPlan, data)
}

func (o *Orchestrator) loadPlan(sessionID string) (*Plan, error) {
	data, err := o.db.GetArtifact(sessionID, artifactKindPlan)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("no plan found for session %s", sessionID)
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &plan, nil
}

// LoadPlan exposes loadPlan to callers outside the package (the CLI's
// "shadow report" aggregation, which reads a past plan back without
// re-running it).
func (o *Orchestrator) LoadPlan(sessionID string) (*Plan, error) {
	return o.loadPlan(sessionID)
}

// Apply reads back the session's plan and executes every candidate that
// wasn't blocked, in sequence (never in parallel, so max_kills_per_run and
// reversal-metadata capture stay consistent across the run). dryRun and
// shadow both skip execution entirely; shadow additionally marks the
// outcome so it's clear the decision pipeline ran, but nothing changed.
func (o *Orchestrator) Apply(sessionID string) (*ApplyOutcome, error) {
	plan, err := o.loadPlan(sessionID)
	if err != nil {
		return nil, err
	}

	out := &ApplyOutcome{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     sessionID,
		NodeID:        o.nodeID,
		AppliedAt:     time.Now(),
		DryRun:        plan.DryRun,
		Shadow:        plan.Shadow,
	}

	for _, cand := range plan.Candidates {
		applied := AppliedAction{PID: cand.PID, Action: cand.FinalAction}

		switch {
		case cand.GuardrailBlocked:
			applied.Skipped = true
			applied.SkipReason = "guardrail_blocked: " + cand.GuardrailRule
		case cand.BudgetBlocked:
			applied.Skipped = true
			applied.SkipReason = "budget_blocked"
		case plan.DryRun:
			applied.Skipped = true
			applied.SkipReason = "dry_run"
		case plan.Shadow:
			applied.Skipped = true
			applied.SkipReason = "shadow"
		default:
			if o.bucket != nil && !o.bucket.ConsumeForAction(cand.FinalAction) {
				applied.Skipped = true
				applied.SkipReason = "budget_exhausted"
				break
			}
			result := o.executor.Apply(cand.FinalAction, cand.PID)
			applied.Status = result.Status.String()
			applied.AppliedAt = result.AppliedAt
			applied.VerifiedAt = result.VerifiedAt
			if result.Err != nil {
				applied.Error = result.Err.Error()
			}
			if o.metrics != nil {
				o.metrics.ActionsAppliedTotal.WithLabelValues(cand.FinalAction.String(), applied.Status).Inc()
			}
			if result.Status != action.StatusVerified {
				o.fireEscalation(cand, applied)
			}
		}

		out.Actions = append(out.Actions, applied)
	}

	o.flushEscalations()

	if err := o.persistApply(sessionID, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) fireEscalation(cand CandidateDecision, applied AppliedAction) {
	if o.escalation == nil {
		return
	}
	key := fmt.Sprintf("pid:%d:action:%s", cand.PID, cand.FinalAction)
	maxPosterior := cand.Posterior.Useful
	for _, v := range []float64{cand.Posterior.UsefulBad, cand.Posterior.Abandoned, cand.Posterior.Zombie} {
		if v > maxPosterior {
			maxPosterior = v
		}
	}
	tier := o.escalation.Fire(key, escalation.Inputs{
		Confidence:       maxPosterior,
		GuardrailBlocked: boolToFloat(cand.GuardrailBlocked),
	}, fmt.Sprintf("action %s on pid %d ended in status %s", cand.FinalAction, cand.PID, applied.Status),
		"orchestrator.apply", time.Now())

	if o.metrics != nil {
		o.metrics.EscalationTriggersFiredTotal.WithLabelValues(tier.String()).Inc()
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func (o *Orchestrator) flushEscalations() {
	if o.escalation == nil {
		return
	}
	due := o.escalation.Flush(time.Now())
	if o.metrics != nil {
		for _, trig := range due {
			o.metrics.EscalationTriggersSentTotal.WithLabelValues(trig.Tier.String()).Inc()
		}
		o.metrics.EscalationPending.Set(float64(o.escalation.PendingCount()))
	}
}

func (o *Orchestrator) persistApply(sessionID string, out *ApplyOutcome) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal apply outcome: %w", err)
	}
	return o.db.PutArtifact(sessionID, artifactKindApply, data)
}

// Verify reads back the session's apply outcome and re-checks each
// non-skipped action's end state, independent of the Executor's own
// immediate post-execute verification — this catches an action that
// verified at apply time but was since reversed out-of-band.
func (o *Orchestrator) Verify(sessionID string) (*VerifyOutcome, error) {
	data, err := o.db.GetArtifact(sessionID, artifactKindApply)
	if err != nil {
		return nil, fmt.Errorf("load apply outcome: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("no apply outcome found for session %s", sessionID)
	}
	var applyOutcome ApplyOutcome
	if err := json.Unmarshal(data, &applyOutcome); err != nil {
		return nil, fmt.Errorf("unmarshal apply outcome: %w", err)
	}

	out := &VerifyOutcome{
		SchemaVersion: artifactSchemaVersion,
		SessionID:     sessionID,
		NodeID:        o.nodeID,
		VerifiedAt:    time.Now(),
	}

	for _, applied := range applyOutcome.Actions {
		if applied.Skipped {
			continue
		}
		finding := VerifyFinding{PID: applied.PID, Action: applied.Action, StillValid: true}
		if verr := o.executor.VerifyAction(applied.Action, applied.PID); verr != nil {
			finding.StillValid = false
			finding.Detail = verr.Error()
		}
		out.Findings = append(out.Findings, finding)
	}

	data, err = json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal verify outcome: %w", err)
	}
	if err := o.db.PutArtifact(sessionID, artifactKindVerify, data); err != nil {
		return nil, err
	}
	return out, nil
}

// Capabilities reports which action runners are meaningfully usable on this
// host right now (root required for most of them).
func (o *Orchestrator) Capabilities() Capabilities {
	return Capabilities{
		SchemaVersion: artifactSchemaVersion,
		NodeID:        o.nodeID,
		Platform:      platformName(),
		AvailableActions: []string{
			decision.Keep.String(), decision.Renice.String(), decision.Pause.String(),
			decision.Throttle.String(), decision.Restart.String(), decision.Kill.String(),
			decision.Freeze.String(), decision.Quarantine.String(),
		},
		RunningAsRoot: os.Geteuid() == 0,
		GossipEnabled: o.gossipEnabled,
	}
}

func platformName() string {
	return runtime.GOOS
}

// Correlator exposes the fleet correlator so the daemon can feed it
// observations gathered outside the normal scan pipeline, such as envelopes
// received over the gossip transport.
func (o *Orchestrator) Correlator() *fleet.Correlator {
	return o.correlator
}

// SetCorrelationMinHosts updates the distinct-host count DetectCorrelated
// requires before flagging a pattern. Used by the gossip partition monitor
// to relax the threshold when this node can't reach the full fleet.
func (o *Orchestrator) SetCorrelationMinHosts(n int) {
	if n < 1 {
		n = 1
	}
	o.correlationMinHosts.Store(int32(n))
}

// Tick runs one full snapshot -> plan -> apply -> verify pass for a
// long-running agent process (as opposed to the CLI's separately-invoked
// steps), and rolls the fleet correlator/budget over for the next tick.
func (o *Orchestrator) Tick(ctx context.Context, sessionID string, dryRun, shadow bool) error {
	if _, err := o.Snapshot(ctx, sessionID); err != nil {
		return fmt.Errorf("tick snapshot: %w", err)
	}
	if _, err := o.Plan(sessionID, dryRun, shadow); err != nil {
		return fmt.Errorf("tick plan: %w", err)
	}
	if _, err := o.Apply(sessionID); err != nil {
		return fmt.Errorf("tick apply: %w", err)
	}
	if _, err := o.Verify(sessionID); err != nil {
		return fmt.Errorf("tick verify: %w", err)
	}

	if o.correlator != nil {
		patterns := o.correlator.DetectCorrelated(int(o.correlationMinHosts.Load()))
		if o.metrics != nil {
			o.metrics.FleetCorrelatedPatterns.Set(float64(len(patterns)))
		}
		o.correlator.Reset()
	}

	return nil
}

// Run drives Tick on interval until ctx is cancelled (SIGINT/SIGTERM at the
// caller), logging but not dying on a single tick's error so a transient
// scan failure never takes the agent down.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, interval time.Duration, dryRun, shadow bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator run loop stopping", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			if err := o.Tick(ctx, sessionID, dryRun, shadow); err != nil {
				o.log.Error("tick failed", zap.Error(err))
			}
		}
	}
}
