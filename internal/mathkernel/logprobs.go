package mathkernel

import "math"

// LogSumExp returns log(Sum_i exp(logs[i])) computed stably by factoring out
// the maximum element. Returns -Inf for an empty slice.
func LogSumExp(logs []float64) float64 {
	if len(logs) == 0 {
		return math.Inf(-1)
	}
	maxLog := math.Inf(-1)
	for _, v := range logs {
		if math.IsNaN(v) {
			return math.NaN()
		}
		if v > maxLog {
			maxLog = v
		}
	}
	if math.IsInf(maxLog, -1) {
		return math.Inf(-1)
	}
	sum := 0.0
	for _, v := range logs {
		sum += math.Exp(v - maxLog)
	}
	return maxLog + math.Log(sum)
}

// NormalizeLogProbs converts unnormalized log-probabilities (e.g. log joint
// densities for each candidate class) into normalized log-probabilities,
// whose exponentials sum to 1, using the log-sum-exp trick so the result is
// stable even when the inputs span a wide dynamic range. An empty input
// returns nil; a NaN input, or inputs that are all -Inf, give all-NaN.
func NormalizeLogProbs(logs []float64) []float64 {
	if len(logs) == 0 {
		return nil
	}
	logZ := LogSumExp(logs)
	if math.IsNaN(logZ) || math.IsInf(logZ, -1) {
		out := make([]float64, len(logs))
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	out := make([]float64, len(logs))
	for i, v := range logs {
		out[i] = v - logZ
	}
	return out
}
