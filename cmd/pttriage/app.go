package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/processtriage/pttriage/internal/budget"
	"github.com/processtriage/pttriage/internal/config"
	"github.com/processtriage/pttriage/internal/escalation"
	"github.com/processtriage/pttriage/internal/fleet"
	"github.com/processtriage/pttriage/internal/logging"
	"github.com/processtriage/pttriage/internal/orchestrator"
	"github.com/processtriage/pttriage/internal/policy"
	"github.com/processtriage/pttriage/internal/priors"
	"github.com/processtriage/pttriage/internal/redact"
	"github.com/processtriage/pttriage/internal/session"
	"github.com/processtriage/pttriage/internal/storage"
)

// app bundles every long-lived dependency a subcommand needs, built once
// from the resolved config/policy/priors chain. Commands that only touch
// the storage/session layer still pay the cost of opening the full daemon
// config since the DB path and log settings live there, mirroring the
// single bootstrap path octoreflex's main() used ahead of every subcommand.
type app struct {
	cfg    *config.Config
	pol    policy.Policy
	pr     priors.Priors
	polSrc config.ConfigSource
	prSrc  config.ConfigSource
	log    *zap.Logger
	db     *storage.DB
	orch   *orchestrator.Orchestrator
	sess   *session.Manager
	esc    *escalation.Manager
	fdr    *fleet.Coordinator
	bucket *budget.Bucket
}

// newApp loads the daemon config, resolves priors/policy, opens storage,
// and wires an Orchestrator. Callers must call close() when done.
func newApp(flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	resolver := config.NewResolver(flags.priorsPath, flags.policyPath)
	pr, prSrc, err := resolver.ResolvePriors()
	if err != nil {
		return nil, fmt.Errorf("resolve priors: %w", err)
	}
	pol, polSrc, err := resolver.ResolvePolicy()
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}

	dbPath := cfg.Storage.DBPath
	if flags.dbPath != "" {
		dbPath = flags.dbPath
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", dbPath, err)
	}
	log.Info("storage opened", redact.Field("path", dbPath))

	escMgr := escalation.NewManagerWithPressureAlpha(
		escalation.Weights{
			BlastRadius:      cfg.Escalation.WeightBlastRadius,
			Confidence:       cfg.Escalation.WeightConfidence,
			GuardrailBlocked: cfg.Escalation.WeightGuardrailBlocked,
			Pressure:         cfg.Escalation.WeightPressure,
		},
		escalation.Thresholds{
			Warning:   cfg.Escalation.ThresholdWarning,
			Critical:  cfg.Escalation.ThresholdCritical,
			Emergency: cfg.Escalation.ThresholdEmergency,
		},
		cfg.Escalation.PressureAlpha,
	)

	fdr := fleet.NewCoordinator(cfg.Fleet.TargetFDR)

	var bucket *budget.Bucket
	if cfg.Budget.Capacity > 0 {
		bucket = budget.New(cfg.Budget.Capacity, cfg.Budget.RefillPeriod)
	}

	procRoot := flags.procRoot
	if procRoot == "" {
		procRoot = "/proc"
	}

	orch := orchestrator.New(orchestrator.Config{
		ProcRoot:            procRoot,
		NodeID:              cfg.NodeID,
		CorrelationMinHosts: cfg.Fleet.CorrelationMinHosts,
		RobotMode:           flags.robotMode,
		InitialAlpha:        cfg.Fleet.InitialAlpha,
		GossipEnabled:       cfg.Gossip.Enabled,
	}, db, &pol, &pr, escMgr, fdr, bucket, nil, log)

	return &app{
		cfg:    cfg,
		pol:    pol,
		pr:     pr,
		polSrc: polSrc,
		prSrc:  prSrc,
		log:    log,
		db:     db,
		orch:   orch,
		sess:   session.NewManager(db),
		esc:    escMgr,
		fdr:    fdr,
		bucket: bucket,
	}, nil
}

func (a *app) close() {
	if a.bucket != nil {
		a.bucket.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}

// secondsToDuration converts a CLI-supplied second count into a
// time.Duration for session.CreateOptions.TTL.
func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}

// newBareLogger builds a production JSON logger at info level for
// subcommands that run before (or without) a full app bootstrap, such as
// the standalone `scan` command.
func newBareLogger() (*zap.Logger, error) {
	return logging.New("info", "json")
}

// loadConfig reads the daemon config from path, falling back to compiled-in
// defaults when the file doesn't exist rather than failing the CLI outright
// — most agent subcommands only need the storage/observability settings,
// not a hand-authored config.yaml.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		defaults := config.Defaults()
		return &defaults, nil
	}
	return config.Load(path)
}
