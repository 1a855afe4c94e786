package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestServeMetricsShutsDownOnCancel(t *testing.T) {
	m := NewMetrics()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- m.ServeMetrics(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeMetrics did not return after context cancellation")
	}
}

func TestDecisionsTotalRecordsLabels(t *testing.T) {
	m := NewMetrics()
	m.DecisionsTotal.WithLabelValues("kill").Inc()
	m.DecisionsTotal.WithLabelValues("keep").Inc()
	m.DecisionsTotal.WithLabelValues("keep").Inc()

	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("keep")); got != 2 {
		t.Errorf("keep count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("kill")); got != 1 {
		t.Errorf("kill count = %v, want 1", got)
	}
}

func TestEscalationPendingGauge(t *testing.T) {
	m := NewMetrics()
	m.EscalationPending.Set(3)
	if got := testutil.ToFloat64(m.EscalationPending); got != 3 {
		t.Errorf("EscalationPending = %v, want 3", got)
	}
}
