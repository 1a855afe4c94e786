// Package observability exposes Prometheus metrics and a health endpoint for
// the triage agent. Metric naming follows pttriage_<subsystem>_<name>_<unit>.
// All metrics register on a dedicated registry rather than the global
// default, so embedding this agent alongside other instrumented libraries
// never collides.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor the agent records.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Collection ───────────────────────────────────────────────────────

	// ScansTotal counts completed /proc scan passes.
	ScansTotal prometheus.Counter

	// ScanDurationSeconds records the wall-clock time of a scan pass.
	ScanDurationSeconds prometheus.Histogram

	// ProcessesObserved is the number of processes seen in the most recent scan.
	ProcessesObserved prometheus.Gauge

	// ─── Decision ─────────────────────────────────────────────────────────

	// DecisionsTotal counts posterior classifications, by chosen action.
	DecisionsTotal *prometheus.CounterVec

	// PosteriorConfidenceHistogram records the posterior probability of the
	// chosen class.
	PosteriorConfidenceHistogram prometheus.Histogram

	// ─── Action execution ─────────────────────────────────────────────────

	// ActionsAppliedTotal counts action applications, by action and status.
	ActionsAppliedTotal *prometheus.CounterVec

	// GuardrailBlocksTotal counts guardrail refusals, by rule name.
	GuardrailBlocksTotal *prometheus.CounterVec

	// ─── Escalation ───────────────────────────────────────────────────────

	// EscalationTriggersFiredTotal counts triggers raised, by tier.
	EscalationTriggersFiredTotal *prometheus.CounterVec

	// EscalationTriggersSentTotal counts triggers flushed for delivery, by tier.
	EscalationTriggersSentTotal *prometheus.CounterVec

	// EscalationPending is the number of keys currently awaiting a flush.
	EscalationPending prometheus.Gauge

	// ─── Fleet ────────────────────────────────────────────────────────────

	// FleetEValuesTotal counts e-value submissions, by acceptance outcome.
	FleetEValuesTotal *prometheus.CounterVec

	// FleetCorrelatedPatterns is the number of command signatures currently
	// correlated across enough distinct hosts to flag.
	FleetCorrelatedPatterns prometheus.Gauge

	// ─── Storage ──────────────────────────────────────────────────────────

	// StorageWriteLatency records bbolt write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// StorageSessionsActive is the current number of open sessions.
	StorageSessionsActive prometheus.Gauge

	// ─── Agent ────────────────────────────────────────────────────────────

	// AgentUptimeSeconds is the number of seconds since agent start.
	AgentUptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers every metric on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pttriage", Subsystem: "scan", Name: "total",
			Help: "Total completed /proc scan passes.",
		}),

		ScanDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pttriage", Subsystem: "scan", Name: "duration_seconds",
			Help:    "Wall-clock duration of a scan pass.",
			Buckets: prometheus.DefBuckets,
		}),

		ProcessesObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pttriage", Subsystem: "scan", Name: "processes_observed",
			Help: "Number of processes observed in the most recent scan.",
		}),

		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pttriage", Subsystem: "decision", Name: "total",
			Help: "Total posterior classifications, by chosen action.",
		}, []string{"action"}),

		PosteriorConfidenceHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pttriage", Subsystem: "decision", Name: "posterior_confidence",
			Help:    "Posterior probability of the chosen classification.",
			Buckets: []float64{0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99},
		}),

		ActionsAppliedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pttriage", Subsystem: "action", Name: "applied_total",
			Help: "Total action applications, by action and resulting status.",
		}, []string{"action", "status"}),

		GuardrailBlocksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pttriage", Subsystem: "action", Name: "guardrail_blocks_total",
			Help: "Total actions refused by a guardrail, by rule name.",
		}, []string{"rule"}),

		EscalationTriggersFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pttriage", Subsystem: "escalation", Name: "triggers_fired_total",
			Help: "Total triggers raised, by severity tier.",
		}, []string{"tier"}),

		EscalationTriggersSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pttriage", Subsystem: "escalation", Name: "triggers_sent_total",
			Help: "Total triggers flushed for delivery, by severity tier.",
		}, []string{"tier"}),

		EscalationPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pttriage", Subsystem: "escalation", Name: "pending",
			Help: "Number of dedupe keys currently awaiting a flush.",
		}),

		FleetEValuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pttriage", Subsystem: "fleet", Name: "evalues_total",
			Help: "Total e-value submissions to the fleet FDR coordinator, by outcome.",
		}, []string{"outcome"}),

		FleetCorrelatedPatterns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pttriage", Subsystem: "fleet", Name: "correlated_patterns",
			Help: "Number of command signatures currently correlated across hosts.",
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pttriage", Subsystem: "storage", Name: "write_latency_seconds",
			Help:    "bbolt write transaction latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		StorageSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pttriage", Subsystem: "storage", Name: "sessions_active",
			Help: "Current number of open sessions.",
		}),

		AgentUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pttriage", Subsystem: "agent", Name: "uptime_seconds",
			Help: "Seconds since the agent started.",
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDurationSeconds,
		m.ProcessesObserved,
		m.DecisionsTotal,
		m.PosteriorConfidenceHistogram,
		m.ActionsAppliedTotal,
		m.GuardrailBlocksTotal,
		m.EscalationTriggersFiredTotal,
		m.EscalationTriggersSentTotal,
		m.EscalationPending,
		m.FleetEValuesTotal,
		m.FleetCorrelatedPatterns,
		m.StorageWriteLatency,
		m.StorageSessionsActive,
		m.AgentUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus + health HTTP server on addr (e.g.
// "127.0.0.1:9091") and blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.AgentUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
