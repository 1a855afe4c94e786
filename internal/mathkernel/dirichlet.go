package mathkernel

import "math"

// LogMultivariateBeta returns log B(alpha) = Sum_i logGamma(alpha_i) -
// logGamma(Sum_i alpha_i), the normalizing constant of a Dirichlet(alpha)
// density. NaN if alpha is empty or any component is non-positive.
func LogMultivariateBeta(alpha []float64) float64 {
	if len(alpha) == 0 {
		return math.NaN()
	}
	sum := 0.0
	logSumGamma := 0.0
	for _, a := range alpha {
		if math.IsNaN(a) || a <= 0 {
			return math.NaN()
		}
		sum += a
		logSumGamma += LogGamma(a)
	}
	return logSumGamma - LogGamma(sum)
}

// DirichletPosterior returns the eta-tempered posterior concentration
// parameters after observing category counts: post_i = alpha_i + eta*counts_i.
// Returns nil if counts and alpha have mismatched length or inputs are
// invalid.
func DirichletPosterior(alpha, counts []float64, eta float64) []float64 {
	if len(alpha) != len(counts) {
		return nil
	}
	if math.IsNaN(eta) || eta <= 0 || eta > 1 {
		return nil
	}
	post := make([]float64, len(alpha))
	for i, a := range alpha {
		c := counts[i]
		if math.IsNaN(c) || c < 0 {
			return nil
		}
		post[i] = a + eta*c
	}
	return post
}

// DirichletMultinomialLogMarginal returns the log marginal likelihood of the
// observed category counts under a Dirichlet(alpha) prior and Multinomial
// likelihood, tempered by eta:
//
//	log(N! / Prod_i n_i!) + log B(alpha + eta*n) - log B(alpha)
//
// where N = Sum_i n_i. Used for the categorical evidence terms (process
// state distribution, command category distribution) that the Beta-Binomial
// model can't represent directly. Returns NaN for invalid inputs.
func DirichletMultinomialLogMarginal(alpha, counts []float64, eta float64) float64 {
	if len(alpha) != len(counts) || len(alpha) == 0 {
		return math.NaN()
	}
	if math.IsNaN(eta) || eta <= 0 || eta > 1 {
		return math.NaN()
	}
	for _, a := range alpha {
		if math.IsNaN(a) || a <= 0 {
			return math.NaN()
		}
	}

	nTotal := 0.0
	logCountFactorials := 0.0
	for _, c := range counts {
		if math.IsNaN(c) || c < 0 {
			return math.NaN()
		}
		nTotal += c
		logCountFactorials += LogGamma(c + 1)
	}
	logMultinomial := LogGamma(nTotal+1) - logCountFactorials

	postAlpha := DirichletPosterior(alpha, counts, eta)
	if postAlpha == nil {
		return math.NaN()
	}

	logBPost := LogMultivariateBeta(postAlpha)
	logBPrior := LogMultivariateBeta(alpha)
	if math.IsNaN(logBPost) || math.IsNaN(logBPrior) {
		return math.NaN()
	}

	return logMultinomial + logBPost - logBPrior
}

// DirichletMean returns the mean vector E[p_i] = alpha_i / Sum_j alpha_j.
func DirichletMean(alpha []float64) []float64 {
	if len(alpha) == 0 {
		return nil
	}
	sum := 0.0
	for _, a := range alpha {
		if math.IsNaN(a) || a <= 0 {
			return nil
		}
		sum += a
	}
	mean := make([]float64, len(alpha))
	for i, a := range alpha {
		mean[i] = a / sum
	}
	return mean
}

// DirichletVariance returns Var[p_i] = alpha_i(alpha_0 - alpha_i) /
// (alpha_0^2 (alpha_0+1)) for the component at index i, where alpha_0 is the
// total concentration.
func DirichletVariance(alpha []float64, i int) float64 {
	if i < 0 || i >= len(alpha) {
		return math.NaN()
	}
	sum := 0.0
	for _, a := range alpha {
		if math.IsNaN(a) || a <= 0 {
			return math.NaN()
		}
		sum += a
	}
	ai := alpha[i]
	return (ai * (sum - ai)) / (sum * sum * (sum + 1))
}

// DirichletLogPredictive returns the log predictive probability of observing
// category i given the posterior concentration parameters: log(alpha_i /
// Sum_j alpha_j).
func DirichletLogPredictive(posteriorAlpha []float64, i int) float64 {
	if i < 0 || i >= len(posteriorAlpha) {
		return math.NaN()
	}
	sum := 0.0
	for _, a := range posteriorAlpha {
		sum += a
	}
	return math.Log(posteriorAlpha[i]) - math.Log(sum)
}

// DirichletLogBayesFactor compares two Dirichlet priors over the same
// observed category counts: log P(data|H1) - log P(data|H0).
func DirichletLogBayesFactor(alphaH1, alphaH0, counts []float64, eta float64) float64 {
	logH1 := DirichletMultinomialLogMarginal(alphaH1, counts, eta)
	logH0 := DirichletMultinomialLogMarginal(alphaH0, counts, eta)
	if math.IsNaN(logH1) || math.IsNaN(logH0) {
		return math.NaN()
	}
	return logH1 - logH0
}
