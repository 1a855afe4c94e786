package escalation

import "sync"

// Accumulator is an EWMA smoother for a per-dedupe-key repeat-trigger
// signal: P_{t+1} = alpha*P_t + (1-alpha)*A_t. High alpha resists single
// spikes; low alpha reacts to them. Default alpha=0.8 gives a half-life of
// roughly three evaluation cycles. One Accumulator per dedupe key.
type Accumulator struct {
	mu    sync.Mutex
	alpha float64
	value float64
}

// NewAccumulator builds an Accumulator. Panics if alpha is outside [0,1].
func NewAccumulator(alpha float64) *Accumulator {
	if alpha < 0.0 || alpha > 1.0 {
		panic("alpha must be in [0.0, 1.0]")
	}
	return &Accumulator{alpha: alpha}
}

// Update folds in a new instantaneous value and returns the smoothed result.
func (a *Accumulator) Update(score float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = score + a.alpha*(a.value-score)
	return a.value
}

// Value returns the current smoothed value without updating it.
func (a *Accumulator) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// Reset zeroes the accumulator, used once its dedupe key's trigger has been
// flushed and acknowledged.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = 0.0
}
