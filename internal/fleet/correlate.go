package fleet

import "sync"

// Signature identifies a command across hosts: its content hash plus,
// when known, the deploy SHA that shipped it — two hosts running the same
// binary from two different deploys are a coincidence, not a pattern.
type Signature struct {
	CommandHash string
	DeploySHA   string
}

// CorrelatedPattern is a signature observed on enough distinct hosts to be
// worth flagging as a fleet-wide pattern rather than independent noise.
type CorrelatedPattern struct {
	Signature Signature
	HostCount int
	HostIDs   []string
}

// Correlator tracks, per signature, which hosts have reported it.
type Correlator struct {
	mu   sync.RWMutex
	seen map[Signature]map[string]bool
}

// NewCorrelator builds an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{seen: map[Signature]map[string]bool{}}
}

// Observe records that hostID reported a process matching signature.
func (c *Correlator) Observe(hostID string, signature Signature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hosts, ok := c.seen[signature]
	if !ok {
		hosts = map[string]bool{}
		c.seen[signature] = hosts
	}
	hosts[hostID] = true
}

// DetectCorrelated returns every signature reported by at least minHosts
// distinct hosts, sorted by host count descending.
func (c *Correlator) DetectCorrelated(minHosts int) []CorrelatedPattern {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var patterns []CorrelatedPattern
	for sig, hosts := range c.seen {
		if len(hosts) < minHosts {
			continue
		}
		ids := make([]string, 0, len(hosts))
		for id := range hosts {
			ids = append(ids, id)
		}
		patterns = append(patterns, CorrelatedPattern{Signature: sig, HostCount: len(hosts), HostIDs: ids})
	}

	for i := 1; i < len(patterns); i++ {
		for j := i; j > 0 && patterns[j-1].HostCount < patterns[j].HostCount; j-- {
			patterns[j-1], patterns[j] = patterns[j], patterns[j-1]
		}
	}
	return patterns
}

// Reset clears all tracked observations, used between scan ticks so a
// pattern must be re-observed to remain flagged (avoids an indefinitely
// growing host set for a signature that was only ever transiently
// correlated).
func (c *Correlator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = map[Signature]map[string]bool{}
}
