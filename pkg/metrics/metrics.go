// Package metrics exposes the typed Prometheus metrics surface shared
// across all three services (§4.3 observability, §4.6–§4.9).
//
// All metrics are registered on a dedicated prometheus.Registry rather
// than the default global one, to avoid collisions when multiple
// services run in the same process during tests.
//
// Metric naming convention: bodybroker_<subsystem>_<name>_<unit>.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor this module emits.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Snapshot cache (§4.3) ──────────────────────────────────────────

	// CacheRequestsTotal counts cache.get calls, by outcome (hit, miss).
	CacheRequestsTotal *prometheus.CounterVec

	// CacheGetLatency records end-to-end get() latency for p50/p95/p99.
	CacheGetLatency prometheus.Histogram

	// ─── Detector framework (§4.7–§4.8) ─────────────────────────────────

	// FindingsPerSegment records how many findings a single segment's
	// detector fan-out produced.
	FindingsPerSegment prometheus.Histogram

	// FindingConfidence summarizes confidence values across all findings.
	FindingConfidence prometheus.Summary

	// GoalImpactTotal counts findings tagged with a goal impact, by
	// detector name.
	GoalImpactTotal *prometheus.CounterVec

	// ─── Queue (§4.6) ────────────────────────────────────────────────────

	// QueueDepth is the current number of pending analysis_queue rows.
	QueueDepth prometheus.Gauge

	// WorkersLive is the current number of live queue workers.
	WorkersLive prometheus.Gauge

	// ─── Drift detector (§4.5) ───────────────────────────────────────────

	// DriftAlertsTotal counts emitted drift alerts, by severity.
	DriftAlertsTotal *prometheus.CounterVec

	// ─── Collaboration orchestrator (§4.10) ─────────────────────────────

	// TrajectoriesGeneratedTotal counts generated trajectories, by
	// validity (valid, invalid, fallback).
	TrajectoriesGeneratedTotal *prometheus.CounterVec

	// RegenerationAttempts records how many regeneration rounds a
	// generate_training_examples call needed.
	RegenerationAttempts prometheus.Histogram

	startTime time.Time
}

// New creates and registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		CacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bodybroker",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total snapshot cache get() calls, by outcome.",
		}, []string{"outcome"}),

		CacheGetLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bodybroker",
			Subsystem: "cache",
			Name:      "get_latency_seconds",
			Help:      "End-to-end snapshot cache get() latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		FindingsPerSegment: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bodybroker",
			Subsystem: "vision",
			Name:      "findings_per_segment",
			Help:      "Number of findings produced per analyzed segment.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),

		FindingConfidence: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  "bodybroker",
			Subsystem:  "vision",
			Name:       "finding_confidence",
			Help:       "Confidence value distribution across detector findings.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),

		GoalImpactTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bodybroker",
			Subsystem: "vision",
			Name:      "goal_impact_total",
			Help:      "Findings with a detected goal impact, by detector.",
		}, []string{"detector"}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bodybroker",
			Subsystem: "vision",
			Name:      "queue_depth",
			Help:      "Current number of pending analysis queue entries.",
		}),

		WorkersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bodybroker",
			Subsystem: "vision",
			Name:      "workers_live",
			Help:      "Current number of live queue worker goroutines.",
		}),

		DriftAlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bodybroker",
			Subsystem: "story",
			Name:      "drift_alerts_total",
			Help:      "Total emitted drift alerts, by severity.",
		}, []string{"severity"}),

		TrajectoriesGeneratedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bodybroker",
			Subsystem: "collab",
			Name:      "trajectories_generated_total",
			Help:      "Total generated trajectories, by validity.",
		}, []string{"validity"}),

		RegenerationAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bodybroker",
			Subsystem: "collab",
			Name:      "regeneration_attempts",
			Help:      "Regeneration rounds needed per generate_training_examples call.",
			Buckets:   []float64{0, 1, 2, 3},
		}),
	}

	reg.MustRegister(
		m.CacheRequestsTotal,
		m.CacheGetLatency,
		m.FindingsPerSegment,
		m.FindingConfidence,
		m.GoalImpactTotal,
		m.QueueDepth,
		m.WorkersLive,
		m.DriftAlertsTotal,
		m.TrajectoriesGeneratedTotal,
		m.RegenerationAttempts,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveGet implements cache.Metrics, translating a cache hit/miss
// outcome plus latency into the counter and histogram above.
func (m *Metrics) ObserveGet(hit bool, latency time.Duration) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(outcome).Inc()
	m.CacheGetLatency.Observe(latency.Seconds())
}

// Serve starts the Prometheus HTTP metrics server on addr. Blocks until
// ctx is cancelled or the server fails.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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
