package orchestrator

import (
	"time"

	"github.com/processtriage/pttriage/internal/decision"
	"github.com/processtriage/pttriage/internal/inference"
)

// artifactSchemaVersion is stamped on every JSON artifact this package
// persists, so a future reader can tell which shape it's looking at before
// decoding.
const artifactSchemaVersion = "1.0.0"

// ProcessSnapshot is one process's scanned state, classification, and
// computed posterior, as captured by a single snapshot pass.
type ProcessSnapshot struct {
	PID               uint32                  `json:"pid"`
	PPID              uint32                  `json:"ppid"`
	Cmdline           string                  `json:"cmdline"`
	StartTimeTicks    uint64                  `json:"start_time_ticks"`
	Supervised        bool                    `json:"supervised"`
	SupervisorName    string                  `json:"supervisor_name,omitempty"`
	UnexpectedOrphan  bool                    `json:"unexpected_orphan"`
	Posterior         inference.ClassScores   `json:"posterior"`
	LogOddsAbandonedUseful float64            `json:"log_odds_abandoned_useful"`
	EvidenceTerms     []inference.EvidenceTerm `json:"evidence_terms,omitempty"`
}

// Snapshot is the artifact produced by the "agent snapshot" step: one scan
// pass over the host, fully classified, before any decision is made.
type Snapshot struct {
	SchemaVersion string            `json:"schema_version"`
	SessionID     string            `json:"session_id"`
	NodeID        string            `json:"node_id"`
	TakenAt       time.Time         `json:"taken_at"`
	Processes     []ProcessSnapshot `json:"processes"`
}

// CandidateDecision is one process's proposed action along with the
// rationale and risk-adjustment trail that produced it.
type CandidateDecision struct {
	PID                uint32                    `json:"pid"`
	Cmdline            string                    `json:"cmdline"`
	Posterior          inference.ClassScores     `json:"posterior"`
	OptimalAction      decision.Action           `json:"optimal_action"`
	FinalAction        decision.Action           `json:"final_action"`
	Rationale          decision.DecisionRationale `json:"rationale"`
	RiskAdjusted       bool                      `json:"risk_adjusted"`
	RiskAdjustReason   string                    `json:"risk_adjust_reason,omitempty"`
	GuardrailBlocked   bool                      `json:"guardrail_blocked"`
	GuardrailRule      string                    `json:"guardrail_rule,omitempty"`
	BudgetBlocked      bool                      `json:"budget_blocked"`
}

// Plan is the artifact produced by the "agent plan" step: a snapshot's
// candidate decisions, each run through guardrails and the budget, not yet
// applied.
type Plan struct {
	SchemaVersion string              `json:"schema_version"`
	SessionID     string              `json:"session_id"`
	NodeID        string              `json:"node_id"`
	PlannedAt     time.Time           `json:"planned_at"`
	Candidates    []CandidateDecision `json:"candidates"`
	DryRun        bool                `json:"dry_run"`
	Shadow        bool                `json:"shadow"`
}

// AppliedAction is the execution outcome for one plan candidate.
type AppliedAction struct {
	PID        uint32          `json:"pid"`
	Action     decision.Action `json:"action"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	AppliedAt  time.Time       `json:"applied_at"`
	VerifiedAt time.Time       `json:"verified_at,omitempty"`
	Skipped    bool            `json:"skipped"`
	SkipReason string          `json:"skip_reason,omitempty"`
}

// ApplyOutcome is the artifact produced by the "agent apply" step.
type ApplyOutcome struct {
	SchemaVersion string          `json:"schema_version"`
	SessionID     string          `json:"session_id"`
	NodeID        string          `json:"node_id"`
	AppliedAt     time.Time       `json:"applied_at"`
	Actions       []AppliedAction `json:"actions"`
	DryRun        bool            `json:"dry_run"`
	Shadow        bool            `json:"shadow"`
}

// VerifyFinding is one applied action's post-hoc verification result.
type VerifyFinding struct {
	PID        uint32          `json:"pid"`
	Action     decision.Action `json:"action"`
	StillValid bool            `json:"still_valid"`
	Detail     string          `json:"detail,omitempty"`
}

// VerifyOutcome is the artifact produced by the "agent verify" step: a
// re-check of a prior apply's end-state, independent of the Executor's own
// immediate post-execute verification.
type VerifyOutcome struct {
	SchemaVersion string          `json:"schema_version"`
	SessionID     string          `json:"session_id"`
	NodeID        string          `json:"node_id"`
	VerifiedAt    time.Time       `json:"verified_at"`
	Findings      []VerifyFinding `json:"findings"`
}

// Capabilities reports which action runners this platform and privilege
// level actually support, for "agent capabilities".
type Capabilities struct {
	SchemaVersion    string   `json:"schema_version"`
	NodeID           string   `json:"node_id"`
	Platform         string   `json:"platform"`
	AvailableActions []string `json:"available_actions"`
	RunningAsRoot    bool     `json:"running_as_root"`
	GossipEnabled    bool     `json:"gossip_enabled"`
}

const (
	artifactKindSnapshot = "snapshot"
	artifactKindPlan     = "plan"
	artifactKindApply    = "apply"
	artifactKindVerify   = "verify"
)
