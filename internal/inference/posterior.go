// Package inference computes the posterior P(class|evidence) for the
// four-state model (useful, useful_bad, abandoned, zombie) by combining
// class priors with per-feature evidence in log domain, and explains the
// result as a ledger of per-feature Bayes factors. It depends only on
// internal/priors and internal/mathkernel — never on internal/storage, so
// posteriors and evidence are never persisted (computed fresh every tick).
package inference

import (
	"fmt"
	"math"

	"github.com/processtriage/pttriage/internal/mathkernel"
	"github.com/processtriage/pttriage/internal/priors"
)

// CPUEvidence is either a direct occupancy fraction or an aggregated
// successes/trials count evaluated under the Beta-Binomial marginal.
type CPUEvidence struct {
	Occupancy *float64
	K, N      *float64
	Eta       *float64
}

// Evidence bundles every optional per-feature observation for one process.
// Unset fields contribute zero log-likelihood (the feature is skipped, not
// treated as absent evidence against any class).
type Evidence struct {
	CPU             *CPUEvidence
	RuntimeSeconds  *float64
	Orphan          *bool
	TTY             *bool
	Net             *bool
	IOActive        *bool
	StateFlagIndex  *int
	CommandCatIndex *int
}

// ClassScores holds one float64 per class in the canonical order
// (useful, useful_bad, abandoned, zombie).
type ClassScores struct {
	Useful    float64
	UsefulBad float64
	Abandoned float64
	Zombie    float64
}

func (s ClassScores) asSlice() []float64 {
	return []float64{s.Useful, s.UsefulBad, s.Abandoned, s.Zombie}
}

func classScoresFromSlice(v []float64) ClassScores {
	return ClassScores{Useful: v[0], UsefulBad: v[1], Abandoned: v[2], Zombie: v[3]}
}

func addScores(a, b ClassScores) ClassScores {
	return ClassScores{
		Useful:    a.Useful + b.Useful,
		UsefulBad: a.UsefulBad + b.UsefulBad,
		Abandoned: a.Abandoned + b.Abandoned,
		Zombie:    a.Zombie + b.Zombie,
	}
}

// EvidenceTerm records one feature's per-class log-likelihood contribution,
// kept around so the evidence ledger can later compute Bayes factors
// between any pair of classes.
type EvidenceTerm struct {
	Feature       string
	LogLikelihood ClassScores
}

// PosteriorResult is the output of ComputePosterior.
type PosteriorResult struct {
	Posterior              ClassScores
	LogPosterior           ClassScores
	LogOddsAbandonedUseful float64
	EvidenceTerms          []EvidenceTerm
}

// InvalidEvidenceError reports a malformed evidence value (out of domain,
// NaN, or an index with no matching category).
type InvalidEvidenceError struct {
	Field   string
	Message string
}

func (e *InvalidEvidenceError) Error() string {
	return fmt.Sprintf("invalid evidence for %s: %s", e.Field, e.Message)
}

// InvalidPriorsError reports a malformed prior parameter (non-positive
// Beta/Gamma/Dirichlet parameter, or a prior probability outside (0,1]).
type InvalidPriorsError struct {
	Field   string
	Message string
}

func (e *InvalidPriorsError) Error() string {
	return fmt.Sprintf("invalid priors for %s: %s", e.Field, e.Message)
}

// ComputePosterior evaluates the four-class posterior for one process given
// its priors and observed evidence, returning the normalized posterior,
// log-posterior, log-odds of abandoned vs. useful, and the full per-feature
// evidence trail the ledger is built from.
func ComputePosterior(p *priors.Priors, ev *Evidence) (*PosteriorResult, error) {
	priorScores, err := classScoresFromPriorProbs(p)
	if err != nil {
		return nil, err
	}

	logUnnormalized := priorScores
	terms := []EvidenceTerm{{Feature: "prior", LogLikelihood: priorScores}}

	addTerm := func(feature string, compute func(name string, cp priors.ClassPriors) (float64, error)) error {
		term := ClassScores{}
		for _, name := range priors.ClassNames() {
			cp, _ := p.ClassByName(name)
			ll, err := compute(name, cp)
			if err != nil {
				return err
			}
			switch name {
			case "useful":
				term.Useful = ll
			case "useful_bad":
				term.UsefulBad = ll
			case "abandoned":
				term.Abandoned = ll
			case "zombie":
				term.Zombie = ll
			}
		}
		logUnnormalized = addScores(logUnnormalized, term)
		terms = append(terms, EvidenceTerm{Feature: feature, LogLikelihood: term})
		return nil
	}

	if ev.CPU != nil {
		if err := addTerm("cpu", func(_ string, cp priors.ClassPriors) (float64, error) {
			return logLikCPU(ev.CPU, cp, p)
		}); err != nil {
			return nil, err
		}
	}

	if ev.RuntimeSeconds != nil {
		if err := addTerm("runtime", func(_ string, cp priors.ClassPriors) (float64, error) {
			return logLikRuntime(*ev.RuntimeSeconds, cp)
		}); err != nil {
			return nil, err
		}
	}

	if ev.Orphan != nil {
		if err := addTerm("orphan", func(_ string, cp priors.ClassPriors) (float64, error) {
			return logLikBetaBernoulli(*ev.Orphan, cp.OrphanBeta, "orphan")
		}); err != nil {
			return nil, err
		}
	}

	if ev.TTY != nil {
		if err := addTerm("tty", func(_ string, cp priors.ClassPriors) (float64, error) {
			return logLikBetaBernoulli(*ev.TTY, cp.TTYBeta, "tty")
		}); err != nil {
			return nil, err
		}
	}

	if ev.Net != nil {
		if err := addTerm("net", func(_ string, cp priors.ClassPriors) (float64, error) {
			return logLikBetaBernoulli(*ev.Net, cp.NetBeta, "net")
		}); err != nil {
			return nil, err
		}
	}

	if ev.IOActive != nil {
		if err := addTerm("io_active", func(_ string, cp priors.ClassPriors) (float64, error) {
			if cp.IOActiveBeta == nil {
				return 0, nil
			}
			return logLikBetaBernoulli(*ev.IOActive, *cp.IOActiveBeta, "io_active")
		}); err != nil {
			return nil, err
		}
	}

	if ev.StateFlagIndex != nil {
		if err := addTerm("state_flag", func(name string, _ priors.ClassPriors) (float64, error) {
			return logLikDirichlet(*ev.StateFlagIndex, p.StateFlags, name, "state_flags")
		}); err != nil {
			return nil, err
		}
	}

	if ev.CommandCatIndex != nil {
		if err := addTerm("command_category", func(name string, _ priors.ClassPriors) (float64, error) {
			return logLikDirichlet(*ev.CommandCatIndex, p.CommandCategories, name, "command_categories")
		}); err != nil {
			return nil, err
		}
	}

	logVec := logUnnormalized.asSlice()
	logPostVec := mathkernel.NormalizeLogProbs(logVec)
	for _, v := range logPostVec {
		if math.IsNaN(v) {
			return nil, &InvalidEvidenceError{Field: "posterior", Message: "normalization produced NaN"}
		}
	}
	logPosterior := classScoresFromSlice(logPostVec)
	posterior := ClassScores{
		Useful:    math.Exp(logPostVec[0]),
		UsefulBad: math.Exp(logPostVec[1]),
		Abandoned: math.Exp(logPostVec[2]),
		Zombie:    math.Exp(logPostVec[3]),
	}

	return &PosteriorResult{
		Posterior:              posterior,
		LogPosterior:           logPosterior,
		LogOddsAbandonedUseful: logPosterior.Abandoned - logPosterior.Useful,
		EvidenceTerms:          terms,
	}, nil
}

func classScoresFromPriorProbs(p *priors.Priors) (ClassScores, error) {
	var out ClassScores
	for _, name := range priors.ClassNames() {
		cp, _ := p.ClassByName(name)
		v, err := lnChecked(cp.PriorProb, "priors."+name)
		if err != nil {
			return ClassScores{}, err
		}
		switch name {
		case "useful":
			out.Useful = v
		case "useful_bad":
			out.UsefulBad = v
		case "abandoned":
			out.Abandoned = v
		case "zombie":
			out.Zombie = v
		}
	}
	return out, nil
}

func lnChecked(value float64, field string) (float64, error) {
	if math.IsNaN(value) || value <= 0 {
		return 0, &InvalidPriorsError{Field: field, Message: fmt.Sprintf("expected > 0, got %v", value)}
	}
	return math.Log(value), nil
}

func logLikCPU(ev *CPUEvidence, cp priors.ClassPriors, p *priors.Priors) (float64, error) {
	if ev.Occupancy != nil {
		occ := *ev.Occupancy
		if math.IsNaN(occ) || occ < 0 || occ > 1 {
			return 0, &InvalidEvidenceError{Field: "cpu.occupancy", Message: fmt.Sprintf("expected in [0,1], got %v", occ)}
		}
		return mathkernel.LogBetaPDF(occ, cp.CPUBeta.Alpha, cp.CPUBeta.Beta), nil
	}

	if ev.K == nil || ev.N == nil {
		return 0, &InvalidEvidenceError{Field: "cpu", Message: "neither occupancy nor k/n set"}
	}
	k, n := *ev.K, *ev.N
	if math.IsNaN(k) || math.IsNaN(n) || n <= 0 || k < 0 || k > n {
		return 0, &InvalidEvidenceError{Field: "cpu.binomial", Message: fmt.Sprintf("invalid k/n (k=%v, n=%v)", k, n)}
	}
	eta := p.RobustBayes.EffectiveEta()
	if ev.Eta != nil {
		eta = *ev.Eta
	}
	if math.IsNaN(eta) || eta <= 0 {
		return 0, &InvalidEvidenceError{Field: "cpu.eta", Message: fmt.Sprintf("eta must be > 0 (got %v)", eta)}
	}
	result := mathkernel.BetaBinomialLogMarginal(cp.CPUBeta.Alpha, cp.CPUBeta.Beta, k, n, eta)
	if math.IsNaN(result) {
		return 0, &InvalidEvidenceError{Field: "cpu.binomial", Message: "beta-binomial marginal undefined for these inputs"}
	}
	return result, nil
}

func logLikRuntime(runtime float64, cp priors.ClassPriors) (float64, error) {
	gamma := cp.RuntimeGamma
	if gamma == nil {
		return 0, nil
	}
	if math.IsNaN(runtime) || runtime <= 0 {
		return 0, &InvalidEvidenceError{Field: "runtime_seconds", Message: fmt.Sprintf("expected > 0, got %v", runtime)}
	}
	if gamma.Shape <= 0 || gamma.Rate <= 0 {
		return 0, &InvalidPriorsError{Field: "runtime_gamma", Message: fmt.Sprintf("shape and rate must be > 0 (shape=%v, rate=%v)", gamma.Shape, gamma.Rate)}
	}
	return mathkernel.GammaLogPDF(runtime, gamma.Shape, gamma.Rate), nil
}

func logLikBetaBernoulli(value bool, params priors.BetaParams, field string) (float64, error) {
	if params.Alpha <= 0 || params.Beta <= 0 {
		return 0, &InvalidPriorsError{Field: field, Message: fmt.Sprintf("alpha and beta must be > 0 (alpha=%v, beta=%v)", params.Alpha, params.Beta)}
	}
	denom := params.Alpha + params.Beta
	prob := params.Beta / denom
	if value {
		prob = params.Alpha / denom
	}
	return math.Log(prob), nil
}

func logLikDirichlet(index int, params *priors.PerClassDirichlet, class, field string) (float64, error) {
	dirichlet := params.ForClass(class)
	if dirichlet == nil {
		return 0, nil
	}
	return logDirichletCategorical(index, dirichlet, field)
}

func logDirichletCategorical(index int, params *priors.DirichletParams, field string) (float64, error) {
	if index < 0 || index >= len(params.Alpha) {
		return 0, &InvalidEvidenceError{Field: field, Message: fmt.Sprintf("index %d out of range for %d categories", index, len(params.Alpha))}
	}
	sum := 0.0
	for _, a := range params.Alpha {
		sum += a
	}
	if sum <= 0 {
		return 0, &InvalidPriorsError{Field: field, Message: "dirichlet alpha sum must be > 0"}
	}
	alphaI := params.Alpha[index]
	if alphaI <= 0 {
		return 0, &InvalidPriorsError{Field: field, Message: fmt.Sprintf("dirichlet alpha[%d] must be > 0", index)}
	}
	return math.Log(alphaI) - math.Log(sum), nil
}
