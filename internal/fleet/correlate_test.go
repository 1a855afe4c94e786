package fleet

import "testing"

func TestDetectCorrelatedAboveThreshold(t *testing.T) {
	c := NewCorrelator()
	sig := Signature{CommandHash: "abc123", DeploySHA: "deadbeef"}
	c.Observe("host-1", sig)
	c.Observe("host-2", sig)
	c.Observe("host-3", sig)

	patterns := c.DetectCorrelated(3)
	if len(patterns) != 1 {
		t.Fatalf("len(patterns) = %d, want 1", len(patterns))
	}
	if patterns[0].HostCount != 3 {
		t.Errorf("HostCount = %d, want 3", patterns[0].HostCount)
	}
}

func TestDetectCorrelatedBelowThresholdExcluded(t *testing.T) {
	c := NewCorrelator()
	sig := Signature{CommandHash: "abc123"}
	c.Observe("host-1", sig)

	if patterns := c.DetectCorrelated(2); len(patterns) != 0 {
		t.Errorf("expected no patterns below threshold, got %d", len(patterns))
	}
}

func TestDifferentDeploySHADoesNotCorrelate(t *testing.T) {
	c := NewCorrelator()
	c.Observe("host-1", Signature{CommandHash: "abc123", DeploySHA: "v1"})
	c.Observe("host-2", Signature{CommandHash: "abc123", DeploySHA: "v2"})

	if patterns := c.DetectCorrelated(2); len(patterns) != 0 {
		t.Errorf("expected distinct deploy SHAs to not correlate, got %d", len(patterns))
	}
}

func TestResetClearsObservations(t *testing.T) {
	c := NewCorrelator()
	sig := Signature{CommandHash: "abc123"}
	c.Observe("host-1", sig)
	c.Reset()
	if patterns := c.DetectCorrelated(1); len(patterns) != 0 {
		t.Errorf("expected no patterns after reset, got %d", len(patterns))
	}
}
