// Package config provides configuration loading, validation, and hot-reload
// for the triage agent.
//
// Configuration file: /etc/pttriage/config.yaml (default). Schema version: 1.
//
// Hot-reload: the agent listens for SIGHUP and re-reads/re-validates the
// file. Non-destructive changes (thresholds, weights, log level) apply
// immediately; destructive changes (DB path, gossip listen address) require
// a restart. An invalid reload is logged and the prior config stays active —
// the agent never crashes on a bad hot-reload, only on a bad startup config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the agent.
type Config struct {
	// SchemaVersion must be "1".
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this node in fleet coordination and session records.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	Agent         AgentConfig         `yaml:"agent"`
	Policy        PolicyConfig        `yaml:"policy"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Budget        BudgetConfig        `yaml:"budget"`
	Storage       StorageConfig       `yaml:"storage"`
	Fleet         FleetConfig         `yaml:"fleet"`
	Gossip        GossipConfig        `yaml:"gossip"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// AgentConfig holds agent-level operational parameters.
type AgentConfig struct {
	// ScanInterval is the interval between /proc scan passes. Default: 5s.
	ScanInterval time.Duration `yaml:"scan_interval"`

	// MaxWorkers is the worker pool size for the scan→decide→execute
	// pipeline. Default: 4.
	MaxWorkers int `yaml:"max_workers"`

	// QueueDepth is the in-memory scan-record queue depth. Default: 4096.
	// The orchestrator does not read this field; it builds its scanner with
	// a fixed depth of 4096. A full scanner queue makes the /proc walk wait
	// for the consumer; no record is dropped.
	QueueDepth int `yaml:"queue_depth"`

	// MaxTrackedPIDs caps the number of processes tracked simultaneously.
	// Default: 8192.
	MaxTrackedPIDs int `yaml:"max_tracked_pids"`

	// DryRun is the config-file form of dry-run mode: scans and decisions
	// still run, but Apply marks every candidate skipped with reason
	// "dry_run" and calls no runner. Default: false. The run and agent
	// commands take dry-run mode from their --dry-run flag and do not read
	// this field.
	DryRun bool `yaml:"dry_run"`
}

// PolicyConfig locates the policy and priors documents resolved at startup,
// each carrying a sha256 provenance hash recorded alongside decisions so an
// operator can tell exactly which policy produced a given action.
type PolicyConfig struct {
	// PolicyPath is the path to the loss-matrix/guardrail/FDR policy JSON.
	// Empty uses the built-in default (policy.Default()).
	PolicyPath string `yaml:"policy_path"`

	// PriorsPath is the path to the conjugate-prior parameters JSON.
	// Empty uses the built-in default.
	PriorsPath string `yaml:"priors_path"`
}

// EscalationConfig holds severity weights and tier thresholds.
type EscalationConfig struct {
	WeightBlastRadius      float64 `yaml:"weight_blast_radius"`
	WeightConfidence       float64 `yaml:"weight_confidence"`
	WeightGuardrailBlocked float64 `yaml:"weight_guardrail_blocked"`
	WeightPressure         float64 `yaml:"weight_pressure"`

	ThresholdWarning   float64 `yaml:"threshold_warning"`
	ThresholdCritical  float64 `yaml:"threshold_critical"`
	ThresholdEmergency float64 `yaml:"threshold_emergency"`

	// PressureAlpha is the EWMA smoothing factor applied to repeat triggers
	// for the same dedupe key. Range [0.0, 1.0]. Default: 0.8.
	PressureAlpha float64 `yaml:"pressure_alpha"`
}

// BudgetConfig holds the destructive-action token bucket parameters.
type BudgetConfig struct {
	// Capacity is the maximum number of destructive-action tokens. Default: 20.
	Capacity int `yaml:"capacity"`

	// RefillPeriod is the interval between full refills. Default: 60s.
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// StorageConfig holds bbolt parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the bbolt file.
	DBPath string `yaml:"db_path"`

	// SessionRetentionDays is validated (it must be >= 1) but no other code
	// reads it; sessions are not pruned from the sessions bucket. Default: 30.
	SessionRetentionDays int `yaml:"session_retention_days"`
}

// FleetConfig holds fleet FDR coordination parameters.
type FleetConfig struct {
	// TargetFDR is the fleet-wide target false discovery rate. Default: 0.05.
	TargetFDR float64 `yaml:"target_fdr"`

	// InitialAlpha is the alpha budget allocated to this node on join. Default: 1.0.
	InitialAlpha float64 `yaml:"initial_alpha"`

	// CorrelationMinHosts is the minimum distinct-host count for
	// DetectCorrelated to flag a pattern. Default: 3.
	CorrelationMinHosts int `yaml:"correlation_min_hosts"`
}

// GossipConfig holds the optional distributed fleet transport parameters.
type GossipConfig struct {
	// Enabled controls whether the gossip transport is active. When false,
	// fleet coordination happens only via the SSH-based coordinator.
	// Default: false.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the gRPC listen address. Default: 0.0.0.0:9443.
	ListenAddr string `yaml:"listen_addr"`

	// Peers is the static list of peer addresses (host:port).
	Peers []string `yaml:"peers"`

	// TrustedPeers maps a peer's node ID to its base64-encoded Ed25519 public
	// key. An envelope from a node ID absent here is rejected regardless of
	// signature validity.
	TrustedPeers map[string]string `yaml:"trusted_peers"`

	// EnvelopeTTL is the maximum age of a gossip envelope before rejection.
	// Default: 30s.
	EnvelopeTTL time.Duration `yaml:"envelope_ttl"`

	// PollInterval is how often this node probes peers' HealthCheck RPC to
	// recalibrate partition-aware quorum. Default: 15s.
	PollInterval time.Duration `yaml:"poll_interval"`

	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
	TLSCAFile   string `yaml:"tls_ca_file"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	LogFormat string `yaml:"log_format"`
}

// DefaultDBPath mirrors the storage package constant for use in defaults.
const DefaultDBPath = "/var/lib/pttriage/pttriage.db"

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Agent: AgentConfig{
			ScanInterval:   5 * time.Second,
			MaxWorkers:     4,
			QueueDepth:     4096,
			MaxTrackedPIDs: 8192,
		},
		Escalation: EscalationConfig{
			WeightBlastRadius:      0.4,
			WeightConfidence:       0.2,
			WeightGuardrailBlocked: 0.2,
			WeightPressure:         0.2,
			ThresholdWarning:       1.0,
			ThresholdCritical:      3.0,
			ThresholdEmergency:     6.0,
			PressureAlpha:          0.8,
		},
		Budget: BudgetConfig{
			Capacity:     20,
			RefillPeriod: 60 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:               DefaultDBPath,
			SessionRetentionDays: 30,
		},
		Fleet: FleetConfig{
			TargetFDR:           0.05,
			InitialAlpha:        1.0,
			CorrelationMinHosts: 3,
		},
		Gossip: GossipConfig{
			Enabled:      false,
			ListenAddr:   "0.0.0.0:9443",
			EnvelopeTTL:  30 * time.Second,
			PollInterval: 15 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load reads and validates a config file from the given path, merging onto
// the default config (file values override defaults).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks all config fields for correctness, returning a single
// error that lists every violation found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Agent.MaxWorkers < 1 || cfg.Agent.MaxWorkers > 64 {
		errs = append(errs, fmt.Sprintf("agent.max_workers must be in [1, 64], got %d", cfg.Agent.MaxWorkers))
	}
	if cfg.Agent.QueueDepth < 16 {
		errs = append(errs, fmt.Sprintf("agent.queue_depth must be >= 16, got %d", cfg.Agent.QueueDepth))
	}
	if cfg.Agent.MaxTrackedPIDs < 1 || cfg.Agent.MaxTrackedPIDs > 1<<20 {
		errs = append(errs, fmt.Sprintf("agent.max_tracked_pids must be in [1, 1048576], got %d", cfg.Agent.MaxTrackedPIDs))
	}
	if cfg.Agent.ScanInterval < time.Second {
		errs = append(errs, fmt.Sprintf("agent.scan_interval must be >= 1s, got %s", cfg.Agent.ScanInterval))
	}
	if cfg.Escalation.PressureAlpha < 0.0 || cfg.Escalation.PressureAlpha > 1.0 {
		errs = append(errs, fmt.Sprintf("escalation.pressure_alpha must be in [0.0, 1.0], got %f", cfg.Escalation.PressureAlpha))
	}
	if cfg.Escalation.WeightBlastRadius < 0 || cfg.Escalation.WeightConfidence < 0 ||
		cfg.Escalation.WeightGuardrailBlocked < 0 || cfg.Escalation.WeightPressure < 0 {
		errs = append(errs, "all escalation weights must be >= 0")
	}
	if !(cfg.Escalation.ThresholdWarning < cfg.Escalation.ThresholdCritical &&
		cfg.Escalation.ThresholdCritical < cfg.Escalation.ThresholdEmergency) {
		errs = append(errs, "escalation thresholds must satisfy warning < critical < emergency")
	}
	if cfg.Budget.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("budget.capacity must be >= 1, got %d", cfg.Budget.Capacity))
	}
	if cfg.Budget.RefillPeriod < time.Second {
		errs = append(errs, fmt.Sprintf("budget.refill_period must be >= 1s, got %s", cfg.Budget.RefillPeriod))
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.SessionRetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.session_retention_days must be >= 1, got %d", cfg.Storage.SessionRetentionDays))
	}
	if cfg.Fleet.TargetFDR <= 0.0 || cfg.Fleet.TargetFDR >= 1.0 {
		errs = append(errs, fmt.Sprintf("fleet.target_fdr must be in (0.0, 1.0), got %f", cfg.Fleet.TargetFDR))
	}
	if cfg.Fleet.InitialAlpha <= 0.0 {
		errs = append(errs, fmt.Sprintf("fleet.initial_alpha must be > 0, got %f", cfg.Fleet.InitialAlpha))
	}
	if cfg.Fleet.CorrelationMinHosts < 2 {
		errs = append(errs, fmt.Sprintf("fleet.correlation_min_hosts must be >= 2, got %d", cfg.Fleet.CorrelationMinHosts))
	}
	if cfg.Gossip.Enabled {
		if cfg.Gossip.TLSCertFile == "" || cfg.Gossip.TLSKeyFile == "" || cfg.Gossip.TLSCAFile == "" {
			errs = append(errs, "gossip.tls_cert_file, tls_key_file, and tls_ca_file are required when gossip is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
