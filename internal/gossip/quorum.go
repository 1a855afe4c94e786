// Package gossip — quorum.go
//
// Partition-aware recalibration for fleet-wide pattern corroboration.
//
// Observation bookkeeping itself lives in internal/fleet.Correlator — the
// same structure the orchestrator already builds local signatures from — so
// Quorum does not keep its own copy of who-reported-what. Its only job is
// deciding how many distinct hosts should be required before a correlated
// signature is trusted, and recalibrating that number down when this node
// can't reach enough of the fleet to expect the full count.
//
// Partition condition:
//
//	reachablePeers / totalPeers < PartitionThreshold  → PartitionModeIsolated
//
// In PartitionModeIsolated, the required host count drops to
// max(1, floor(reachablePeers * QuorumFraction)) so an isolated node keeps
// making decisions from whatever corroboration it can still see, instead of
// silently losing its correlation signal because the rest of the fleet went
// dark.
package gossip

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// PartitionMode describes the current gossip partition state of this node.
type PartitionMode int32

const (
	// PartitionModeNormal — the configured MinHosts applies as-is.
	PartitionModeNormal PartitionMode = 0
	// PartitionModeIsolated — MinHosts is recalibrated to reachable peers.
	PartitionModeIsolated PartitionMode = 1
)

func (m PartitionMode) String() string {
	if m == PartitionModeIsolated {
		return "isolated"
	}
	return "normal"
}

// PartitionEvent is emitted when the node enters or exits partition mode.
// The daemon consumes this to log reduced-confidence operation and surface a
// fleet-health warning to operators.
type PartitionEvent struct {
	Mode            PartitionMode
	ReachablePeers  int
	TotalPeers      int
	RecalibratedMin int
	Timestamp       time.Time
}

// PartitionSink receives PartitionEvents. Implementations must be non-blocking.
type PartitionSink interface {
	Emit(PartitionEvent)
}

// ChannelPartitionSink is a non-blocking PartitionSink backed by a channel.
// Events are dropped (and Dropped incremented) if the channel is full.
type ChannelPartitionSink struct {
	C       chan PartitionEvent
	Dropped uint64 // accessed atomically
}

func (s *ChannelPartitionSink) Emit(evt PartitionEvent) {
	select {
	case s.C <- evt:
	default:
		atomic.AddUint64(&s.Dropped, 1)
	}
}

// QuorumConfig holds configuration for the Quorum recalibrator.
type QuorumConfig struct {
	// MinHosts is the distinct-host count required for a correlated
	// signature to be trusted under normal (non-partitioned) conditions.
	// Must be >= 1. Typically seeded from fleet.CorrelationMinHosts.
	MinHosts int

	// TotalPeers is the number of configured gossip peers, excluding self.
	TotalPeers int

	// PartitionThreshold is the reachable-peer fraction below which
	// partition mode activates. Default: 0.5.
	PartitionThreshold float64

	// QuorumFraction recalibrates MinHosts in partition mode:
	// recalibrated = max(1, floor(reachablePeers * QuorumFraction)).
	// Default: 0.5.
	QuorumFraction float64

	// PartitionSink receives partition mode transition events. May be nil.
	PartitionSink PartitionSink
}

// Quorum recalibrates the correlation host-count threshold as peer
// reachability changes. It holds no observation data of its own.
type Quorum struct {
	mu  sync.RWMutex
	cfg QuorumConfig

	currentMode    PartitionMode
	reachablePeers int
	effectiveMin   int
}

// NewQuorum creates a Quorum recalibrator seeded with minHosts as the
// normal-mode threshold.
func NewQuorum(minHosts int) *Quorum {
	return NewQuorumWithConfig(QuorumConfig{MinHosts: minHosts})
}

// NewQuorumWithConfig creates a Quorum recalibrator with full configuration.
func NewQuorumWithConfig(cfg QuorumConfig) *Quorum {
	if cfg.MinHosts < 1 {
		cfg.MinHosts = 1
	}
	if cfg.PartitionThreshold <= 0 || cfg.PartitionThreshold > 1 {
		cfg.PartitionThreshold = 0.5
	}
	if cfg.QuorumFraction <= 0 || cfg.QuorumFraction > 1 {
		cfg.QuorumFraction = 0.5
	}
	return &Quorum{cfg: cfg, effectiveMin: cfg.MinHosts}
}

// UpdatePeerReachability records how many peers answered the most recent
// health probe round and recalibrates the effective host-count threshold.
// Called by the gossip client's poll loop, not by ShareObservation.
func (q *Quorum) UpdatePeerReachability(reachablePeers int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.reachablePeers = reachablePeers
	total := q.cfg.TotalPeers

	var newMode PartitionMode
	var newMin int
	switch {
	case total == 0:
		newMode = PartitionModeNormal
		newMin = 1
	case float64(reachablePeers)/float64(total) < q.cfg.PartitionThreshold:
		newMin = int(math.Floor(float64(reachablePeers) * q.cfg.QuorumFraction))
		if newMin < 1 {
			newMin = 1
		}
		newMode = PartitionModeIsolated
	default:
		newMode = PartitionModeNormal
		newMin = q.cfg.MinHosts
	}

	if newMode == q.currentMode && newMin == q.effectiveMin {
		return
	}
	q.currentMode = newMode
	q.effectiveMin = newMin
	if q.cfg.PartitionSink != nil {
		q.cfg.PartitionSink.Emit(PartitionEvent{
			Mode:            newMode,
			ReachablePeers:  reachablePeers,
			TotalPeers:      total,
			RecalibratedMin: newMin,
			Timestamp:       time.Now(),
		})
	}
}

// EffectiveMinHosts returns the host-count threshold currently in effect —
// the value callers should pass to fleet.Correlator.DetectCorrelated.
func (q *Quorum) EffectiveMinHosts() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.effectiveMin
}

// State returns the current partition mode and reachable peer count.
func (q *Quorum) State() (mode PartitionMode, reachablePeers int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentMode, q.reachablePeers
}
