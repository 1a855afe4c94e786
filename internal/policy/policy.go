// Package policy defines the operator-tunable decision policy: the loss
// matrix the decision engine minimizes expected loss over, plus the
// guardrails, robot-mode thresholds, FDR control target, data-loss gates,
// and CVaR configuration that bound what the orchestrator is allowed to do
// autonomously. Loaded from the same SHA-256-hashed JSON resolution chain
// as internal/priors.
package policy

import "fmt"

// LossRow is one class's loss for each action. Keep and Kill are always
// defined (every class can always be left alone or killed); the others are
// optional so a deployment can omit reversible-intervention losses
// entirely rather than encode an arbitrary sentinel.
type LossRow struct {
	Keep     float64  `json:"keep"`
	Pause    *float64 `json:"pause,omitempty"`
	Throttle *float64 `json:"throttle,omitempty"`
	Renice   *float64 `json:"renice,omitempty"`
	Restart  *float64 `json:"restart,omitempty"`
	Kill     float64  `json:"kill"`
}

// LossMatrix gives one LossRow per classification class.
type LossMatrix struct {
	Useful    LossRow `json:"useful"`
	UsefulBad LossRow `json:"useful_bad"`
	Abandoned LossRow `json:"abandoned"`
	Zombie    LossRow `json:"zombie"`
}

// Guardrails are hard limits the decision/action pipeline never crosses
// regardless of expected loss.
type Guardrails struct {
	NeverKillPPIDs        []int    `json:"never_kill_ppids,omitempty"`
	ProtectedCommandGlobs []string `json:"protected_command_patterns,omitempty"`
	MinProcessAgeSeconds  float64  `json:"min_process_age_seconds"`
	MaxKillsPerRun        int      `json:"max_kills_per_run"`
}

// RobotMode gates what the orchestrator may do without an operator present.
type RobotMode struct {
	MinPosterior      float64 `json:"min_posterior"`
	MaxBlastRadiusMB  float64 `json:"max_blast_radius_mb"`
	MaxKills          int     `json:"max_kills"`
	SignatureRequired bool    `json:"signature_required"`
}

// FDRControl configures the fleet-wide false discovery rate controller.
type FDRControl struct {
	TargetFDR float64 `json:"target_fdr"`
	Method    string  `json:"method"`
	Alpha     float64 `json:"alpha"`
}

// DataLossGates block an otherwise-selected action when the target process
// shows signs of unflushed state.
type DataLossGates struct {
	BlockOnOpenWriteFDs bool `json:"block_on_open_write_fds"`
	BlockOnLockedFiles  bool `json:"block_on_locked_files"`
	BlockOnActiveTTY    bool `json:"block_on_active_tty"`
}

// CVaRConfig configures the risk-sensitive decision layer.
type CVaRConfig struct {
	Alpha               float64 `json:"alpha"`
	RobotModeAlways     bool    `json:"robot_mode_always"`
	LowConfidenceThresh float64 `json:"low_confidence_threshold"`
	HighBlastRadiusMB   float64 `json:"high_blast_radius_mb"`
}

// Policy is the complete decision-policy document.
type Policy struct {
	LossMatrix    LossMatrix    `json:"loss_matrix"`
	Guardrails    Guardrails    `json:"guardrails"`
	RobotMode     RobotMode     `json:"robot_mode"`
	FDRControl    FDRControl    `json:"fdr_control"`
	DataLossGates DataLossGates `json:"data_loss_gates"`
	CVaR          CVaRConfig    `json:"cvar"`
}

func floatPtr(v float64) *float64 { return &v }

// Default returns a conservative, self-consistent policy suitable as a
// starting point when no priors/policy file has been configured yet.
func Default() Policy {
	row := func(keep, kill float64, pause, throttle, renice, restart float64) LossRow {
		return LossRow{
			Keep:     keep,
			Pause:    floatPtr(pause),
			Throttle: floatPtr(throttle),
			Renice:   floatPtr(renice),
			Restart:  floatPtr(restart),
			Kill:     kill,
		}
	}
	return Policy{
		LossMatrix: LossMatrix{
			Useful:    row(0, 100, 5, 8, 1, 60),
			UsefulBad: row(10, 20, 6, 8, 4, 12),
			Abandoned: row(30, 1, 15, 10, 12, 8),
			Zombie:    row(50, 1, 20, 15, 18, 5),
		},
		Guardrails: Guardrails{
			MinProcessAgeSeconds: 60,
			MaxKillsPerRun:       5,
		},
		RobotMode: RobotMode{
			MinPosterior:     0.90,
			MaxBlastRadiusMB: 512,
			MaxKills:         3,
		},
		FDRControl: FDRControl{
			TargetFDR: 0.05,
			Method:    "e-value-bh",
			Alpha:     0.05,
		},
		DataLossGates: DataLossGates{
			BlockOnOpenWriteFDs: true,
			BlockOnLockedFiles:  true,
			BlockOnActiveTTY:    true,
		},
		CVaR: CVaRConfig{
			Alpha:               0.95,
			RobotModeAlways:     true,
			LowConfidenceThresh: 0.60,
			HighBlastRadiusMB:   256,
		},
	}
}

// Validate checks that the policy document is internally consistent enough
// to drive the decision engine: every loss row must prefer Keep over Kill
// for at least a useful process, and the risk/guardrail knobs must sit in
// their valid ranges.
func (p *Policy) Validate() error {
	if p.Guardrails.MaxKillsPerRun < 0 {
		return fmt.Errorf("guardrails.max_kills_per_run must be >= 0, got %d", p.Guardrails.MaxKillsPerRun)
	}
	if p.Guardrails.MinProcessAgeSeconds < 0 {
		return fmt.Errorf("guardrails.min_process_age_seconds must be >= 0, got %v", p.Guardrails.MinProcessAgeSeconds)
	}
	if p.RobotMode.MinPosterior < 0 || p.RobotMode.MinPosterior > 1 {
		return fmt.Errorf("robot_mode.min_posterior must be in [0,1], got %v", p.RobotMode.MinPosterior)
	}
	if p.FDRControl.TargetFDR <= 0 || p.FDRControl.TargetFDR >= 1 {
		return fmt.Errorf("fdr_control.target_fdr must be in (0,1), got %v", p.FDRControl.TargetFDR)
	}
	if p.CVaR.Alpha <= 0 || p.CVaR.Alpha >= 1 {
		return fmt.Errorf("cvar.alpha must be in (0,1), got %v", p.CVaR.Alpha)
	}
	if p.LossMatrix.Useful.Kill <= p.LossMatrix.Useful.Keep {
		return fmt.Errorf("loss_matrix.useful: kill loss (%v) must exceed keep loss (%v)",
			p.LossMatrix.Useful.Kill, p.LossMatrix.Useful.Keep)
	}
	return nil
}
