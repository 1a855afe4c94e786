package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/processtriage/pttriage/internal/policy"
	"github.com/processtriage/pttriage/internal/priors"
)

// ConfigResolution records which step of the resolution chain produced a
// document: an explicit CLI flag wins over an environment variable, which
// wins over a file found in the XDG config directory, which falls back to
// the compiled-in default.
type ConfigResolution string

const (
	ResolutionCLIFlag ConfigResolution = "cli_flag"
	ResolutionEnvVar   ConfigResolution = "env_var"
	ResolutionXDG      ConfigResolution = "xdg_config"
	ResolutionDefault  ConfigResolution = "default"
)

// ConfigSource describes where a resolved document came from and a
// content hash so operators can confirm which priors/policy version an
// agent is actually running.
type ConfigSource struct {
	Path       string           `json:"path,omitempty"`
	Hash       string           `json:"sha256,omitempty"`
	Resolution ConfigResolution `json:"resolution"`
}

const (
	envConfigDir   = "PROCESS_TRIAGE_CONFIG"
	envPriorsPath  = "PROCESS_TRIAGE_PRIORS"
	envPolicyPath  = "PROCESS_TRIAGE_POLICY"
	xdgConfigEnv   = "XDG_CONFIG_HOME"
	appConfigDir   = "process_triage"
	priorsFileName = "priors.json"
	policyFileName = "policy.json"
)

// Resolver walks the CLI-flag -> env-var -> XDG-config-dir -> built-in-
// default chain for the priors and policy documents. CLI-supplied paths
// are threaded through explicitly rather than read from os.Args so the
// resolver stays testable and cobra-agnostic.
type Resolver struct {
	CLIPriorsPath string
	CLIPolicyPath string
}

// NewResolver builds a Resolver seeded with any CLI-flag-supplied paths.
// Either may be empty when the corresponding flag wasn't set.
func NewResolver(cliPriorsPath, cliPolicyPath string) *Resolver {
	return &Resolver{CLIPriorsPath: cliPriorsPath, CLIPolicyPath: cliPolicyPath}
}

// resolveConfigDir finds the directory priors.json/policy.json live in
// when neither a CLI flag nor a per-document env var names a file
// directly: PROCESS_TRIAGE_CONFIG, then XDG_CONFIG_HOME/process_triage,
// then the user's standard config directory.
func resolveConfigDir() (string, bool) {
	if v := os.Getenv(envConfigDir); v != "" {
		return v, true
	}
	if xdg := os.Getenv(xdgConfigEnv); xdg != "" {
		return filepath.Join(xdg, appConfigDir), true
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", appConfigDir), true
	}
	return "", false
}

// resolvePath applies the shared CLI -> env -> XDG resolution chain for a
// single document, returning the path to read (if any was found) and the
// resolution step that produced it.
func resolvePath(cliPath, envVar, fileName string) (string, ConfigResolution, bool) {
	if cliPath != "" {
		return cliPath, ResolutionCLIFlag, true
	}
	if v := os.Getenv(envVar); v != "" {
		return v, ResolutionEnvVar, true
	}
	if dir, ok := resolveConfigDir(); ok {
		candidate := filepath.Join(dir, fileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, ResolutionXDG, true
		}
	}
	return "", ResolutionDefault, false
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ResolvePriors returns the priors document and its provenance. When no
// file is found through the CLI/env/XDG chain, it falls back to
// priors.Default() with ConfigSource.Resolution == ResolutionDefault and
// no path or hash.
func (r *Resolver) ResolvePriors() (priors.Priors, ConfigSource, error) {
	path, resolution, found := resolvePath(r.CLIPriorsPath, envPriorsPath, priorsFileName)
	if !found {
		p := priors.Default()
		return p, ConfigSource{Resolution: ResolutionDefault}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return priors.Priors{}, ConfigSource{}, fmt.Errorf("read priors file %s: %w", path, err)
	}
	var p priors.Priors
	if err := json.Unmarshal(data, &p); err != nil {
		return priors.Priors{}, ConfigSource{}, fmt.Errorf("parse priors file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return priors.Priors{}, ConfigSource{}, fmt.Errorf("invalid priors file %s: %w", path, err)
	}
	hash, err := hashFile(path)
	if err != nil {
		return priors.Priors{}, ConfigSource{}, fmt.Errorf("hash priors file %s: %w", path, err)
	}
	return p, ConfigSource{Path: path, Hash: hash, Resolution: resolution}, nil
}

// ResolvePolicy returns the policy document and its provenance, mirroring
// ResolvePriors's fallback and validation behavior.
func (r *Resolver) ResolvePolicy() (policy.Policy, ConfigSource, error) {
	path, resolution, found := resolvePath(r.CLIPolicyPath, envPolicyPath, policyFileName)
	if !found {
		return policy.Default(), ConfigSource{Resolution: ResolutionDefault}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Policy{}, ConfigSource{}, fmt.Errorf("read policy file %s: %w", path, err)
	}
	var p policy.Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return policy.Policy{}, ConfigSource{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return policy.Policy{}, ConfigSource{}, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	hash, err := hashFile(path)
	if err != nil {
		return policy.Policy{}, ConfigSource{}, fmt.Errorf("hash policy file %s: %w", path, err)
	}
	return p, ConfigSource{Path: path, Hash: hash, Resolution: resolution}, nil
}
