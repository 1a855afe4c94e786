package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate(Defaults()) = %v, want nil", err)
	}
}

func TestValidateRejectsBadSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	if err := Validate(&cfg); err == nil {
		t.Error("expected validation error for wrong schema_version")
	}
}

func TestValidateRejectsUnorderedThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Escalation.ThresholdCritical = cfg.Escalation.ThresholdWarning
	if err := Validate(&cfg); err == nil {
		t.Error("expected validation error when critical <= warning")
	}
}

func TestValidateRequiresTLSWhenGossipEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Gossip.Enabled = true
	if err := Validate(&cfg); err == nil {
		t.Error("expected validation error for gossip enabled without TLS files")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "schema_version: \"1\"\nnode_id: test-node\nagent:\n  max_workers: 8\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NodeID != "test-node" {
		t.Errorf("NodeID = %q, want test-node", cfg.NodeID)
	}
	if cfg.Agent.MaxWorkers != 8 {
		t.Errorf("Agent.MaxWorkers = %d, want 8", cfg.Agent.MaxWorkers)
	}
	// Unset fields retain their defaults.
	if cfg.Budget.Capacity != Defaults().Budget.Capacity {
		t.Errorf("Budget.Capacity = %d, want default %d", cfg.Budget.Capacity, Defaults().Budget.Capacity)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading a nonexistent config file")
	}
}
