package action

import "testing"

func TestQuotaUSFloorsAtMinimum(t *testing.T) {
	cfg := ThrottleConfig{TargetFraction: 0.0001, PeriodUS: 100_000}
	if got := cfg.QuotaUS(); got != MinQuotaUS {
		t.Errorf("QuotaUS = %d, want floor %d", got, MinQuotaUS)
	}
}

func TestQuotaUSDefaultFraction(t *testing.T) {
	cfg := DefaultThrottleConfig()
	want := int64(DefaultThrottleFraction * float64(DefaultPeriodUS))
	if got := cfg.QuotaUS(); got != want {
		t.Errorf("QuotaUS = %d, want %d", got, want)
	}
}

func TestDiscoverCgroupPathsMalformedProc(t *testing.T) {
	_, _, err := discoverCgroupPaths(4294967295) // unlikely to exist
	if err == nil {
		t.Error("expected an error reading cgroup for a nonexistent pid")
	}
}
