// Package budget implements the token bucket rate limiter guarding how many
// destructive actions the orchestrator may apply per refill window.
//
//   - Capacity: configurable (default 20 tokens)
//   - Refill interval: configurable (default 60 seconds)
//   - Refill amount: full capacity (not incremental)
//   - Consumption: atomic, per-action cost
//
// Cost model, by decision.Action:
//   - Renice:    cost 1
//   - Pause:     cost 5
//   - Throttle:  cost 5
//   - Restart:   cost 15
//   - Freeze:    cost 10
//   - Quarantine: cost 20
//   - Kill:      cost 50
//
// Higher-impact actions consume more budget, preventing a cascade of kills
// from a single burst of flagged processes. A full refill each window lets
// the agent recover quickly after a legitimate cleanup burst rather than
// accumulating debt indefinitely.
package budget

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/processtriage/pttriage/internal/decision"
)

// CostModel defines the token cost for each action the orchestrator can
// apply. Reversal actions (Resume/Unfreeze/Unquarantine) and Keep are free.
var CostModel = map[decision.Action]int{
	decision.Renice:     1,
	decision.Pause:      5,
	decision.Throttle:   5,
	decision.Freeze:     10,
	decision.Restart:    15,
	decision.Quarantine: 20,
	decision.Kill:       50,
}

// Bucket is a thread-safe token bucket for rate-limiting destructive actions.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// New creates a Bucket with the given capacity and starts the refill goroutine.
// capacity must be > 0. refillPeriod must be > 0.
// Call Close() to stop the refill goroutine.
func New(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("budget.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("budget.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

// refillLoop runs in a dedicated goroutine and refills the bucket to full
// capacity every refillPeriod. Exits when Close() is called.
func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens from the bucket. Returns true if
// the tokens were available and consumed, false if the action must be
// deferred until the next refill. Thread-safe.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// ConsumeForAction consumes the standard cost for a given decision.Action.
// Actions with no defined cost (Keep, and the free reversal actions) always
// succeed without spending tokens.
func (b *Bucket) ConsumeForAction(action decision.Action) bool {
	cost, ok := CostModel[action]
	if !ok {
		return true
	}
	return b.Consume(cost)
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the maximum token capacity.
func (b *Bucket) Capacity() int {
	return b.capacity
}

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 {
	return b.consumedTotal.Load()
}

// RefillCount returns the number of refill cycles completed.
func (b *Bucket) RefillCount() uint64 {
	return b.refillCount.Load()
}

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() {
	close(b.stop)
}
