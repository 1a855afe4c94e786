// Package priors defines the on-disk class-prior data model: per-class
// conjugate-family parameters (Beta, Gamma, Dirichlet) that the inference
// and decision engines combine with observed evidence. Loaded from a
// SHA-256-hashed JSON file resolved by internal/config.
package priors

import "time"

// BetaParams are the parameters of a Beta(alpha, beta) distribution used as
// a conjugate prior over Bernoulli evidence (orphan, tty, net, io_active)
// and, via BetaBinomialLogMarginal, over aggregated CPU occupancy counts.
type BetaParams struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Mean returns E[p] = alpha / (alpha+beta).
func (b BetaParams) Mean() float64 {
	return b.Alpha / (b.Alpha + b.Beta)
}

// GammaParams are the shape/rate parameters of a Gamma distribution used as
// a prior over process runtime and, when present, hazard rate.
type GammaParams struct {
	Shape float64 `json:"shape"`
	Rate  float64 `json:"rate"`
}

// DirichletParams are concentration parameters over a fixed, named set of
// categories (process state flags R/S/D/Z/T, or command categories).
type DirichletParams struct {
	Alpha []float64 `json:"alpha"`
}

// ClassPriors holds every per-class conjugate-family parameter for one of
// the four classification classes.
type ClassPriors struct {
	PriorProb    float64      `json:"prior_prob"`
	CPUBeta      BetaParams   `json:"cpu_beta"`
	RuntimeGamma *GammaParams `json:"runtime_gamma,omitempty"`
	OrphanBeta   BetaParams   `json:"orphan_beta"`
	TTYBeta      BetaParams   `json:"tty_beta"`
	NetBeta      BetaParams   `json:"net_beta"`
	IOActiveBeta *BetaParams  `json:"io_active_beta,omitempty"`
	HazardGamma  *GammaParams `json:"hazard_gamma,omitempty"`
}

// Classes is the fixed four-way partition every classification decision is
// made over.
type Classes struct {
	Useful    ClassPriors `json:"useful"`
	UsefulBad ClassPriors `json:"useful_bad"`
	Abandoned ClassPriors `json:"abandoned"`
	Zombie    ClassPriors `json:"zombie"`
}

// PerClassDirichlet holds one Dirichlet prior per class for a categorical
// feature (process state flags or command categories).
type PerClassDirichlet struct {
	Useful    *DirichletParams `json:"useful,omitempty"`
	UsefulBad *DirichletParams `json:"useful_bad,omitempty"`
	Abandoned *DirichletParams `json:"abandoned,omitempty"`
	Zombie    *DirichletParams `json:"zombie,omitempty"`
}

// ForClass returns the Dirichlet parameters for the named class, or nil if
// the feature isn't configured for that class (in which case the feature
// contributes zero log-likelihood, i.e. is skipped).
func (p *PerClassDirichlet) ForClass(class string) *DirichletParams {
	if p == nil {
		return nil
	}
	switch class {
	case "useful":
		return p.Useful
	case "useful_bad":
		return p.UsefulBad
	case "abandoned":
		return p.Abandoned
	case "zombie":
		return p.Zombie
	default:
		return nil
	}
}

// InterventionPriors are per-class Beta priors over the probability that a
// given recovery-capable action (pause, throttle, kill, restart) restores a
// process to useful operation, keyed by causal-intervention studies rather
// than by observational correlation.
type InterventionPriors struct {
	Useful    *BetaParams `json:"useful,omitempty"`
	UsefulBad *BetaParams `json:"useful_bad,omitempty"`
	Abandoned *BetaParams `json:"abandoned,omitempty"`
	Zombie    *BetaParams `json:"zombie,omitempty"`
}

// ForClass returns the recovery Beta prior for the named class, or nil if
// unconfigured.
func (ip *InterventionPriors) ForClass(class string) *BetaParams {
	if ip == nil {
		return nil
	}
	switch class {
	case "useful":
		return ip.Useful
	case "useful_bad":
		return ip.UsefulBad
	case "abandoned":
		return ip.Abandoned
	case "zombie":
		return ip.Zombie
	default:
		return nil
	}
}

// CausalInterventions holds the recovery-probability priors the decision
// engine's recovery-preference tie-break draws on, one entry per
// recovery-capable action.
type CausalInterventions struct {
	Pause    *InterventionPriors `json:"pause,omitempty"`
	Throttle *InterventionPriors `json:"throttle,omitempty"`
	Kill     *InterventionPriors `json:"kill,omitempty"`
	Restart  *InterventionPriors `json:"restart,omitempty"`
}

// ForAction returns the intervention priors configured for the named
// action ("pause", "throttle", "kill", "restart"), or nil.
func (ci *CausalInterventions) ForAction(action string) *InterventionPriors {
	if ci == nil {
		return nil
	}
	switch action {
	case "pause":
		return ci.Pause
	case "throttle":
		return ci.Throttle
	case "kill":
		return ci.Kill
	case "restart":
		return ci.Restart
	default:
		return nil
	}
}

// RobustBayes carries the global Safe-Bayes tempering factor applied to
// count-based evidence (Beta-Binomial CPU occupancy, Dirichlet-multinomial
// categoricals) unless a call site supplies its own override.
type RobustBayes struct {
	SafeBayesEta *float64 `json:"safe_bayes_eta,omitempty"`
}

// EffectiveEta returns the configured global eta, defaulting to 1.0 (an
// untempered update) when unset.
func (r *RobustBayes) EffectiveEta() float64 {
	if r == nil || r.SafeBayesEta == nil {
		return 1.0
	}
	return *r.SafeBayesEta
}

// HostProfile records which host characteristics (container runtime, init
// system) the priors were calibrated against, carried through for
// provenance but not consumed by inference itself.
type HostProfile struct {
	ContainerRuntime string `json:"container_runtime,omitempty"`
	InitSystem       string `json:"init_system,omitempty"`
}

// Priors is the complete, versioned class-prior document resolved and
// loaded by internal/config.
type Priors struct {
	SchemaVersion       string               `json:"schema_version"`
	Description         string               `json:"description,omitempty"`
	CreatedAt           *time.Time           `json:"created_at,omitempty"`
	UpdatedAt           *time.Time           `json:"updated_at,omitempty"`
	HostProfile         *HostProfile         `json:"host_profile,omitempty"`
	Classes             Classes              `json:"classes"`
	CommandCategories   *PerClassDirichlet   `json:"command_categories,omitempty"`
	StateFlags          *PerClassDirichlet   `json:"state_flags,omitempty"`
	RobustBayes         *RobustBayes         `json:"robust_bayes,omitempty"`
	CausalInterventions *CausalInterventions `json:"causal_interventions,omitempty"`
}

// ClassByName returns the ClassPriors for one of the four class names, and
// whether the name was recognized.
func (p *Priors) ClassByName(name string) (ClassPriors, bool) {
	switch name {
	case "useful":
		return p.Classes.Useful, true
	case "useful_bad":
		return p.Classes.UsefulBad, true
	case "abandoned":
		return p.Classes.Abandoned, true
	case "zombie":
		return p.Classes.Zombie, true
	default:
		return ClassPriors{}, false
	}
}

// ClassNames lists the four classes in the canonical evaluation order used
// throughout the classifier (useful, useful_bad, abandoned, zombie).
func ClassNames() []string {
	return []string{"useful", "useful_bad", "abandoned", "zombie"}
}
