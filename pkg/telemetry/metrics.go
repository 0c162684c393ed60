package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for featurectl.
type Metrics struct {
	config MetricsConfig

	// Apply run metrics
	appliesStarted   *prometheus.CounterVec
	appliesCompleted *prometheus.CounterVec
	applyDuration    *prometheus.HistogramVec

	// Per-resource metrics
	resourcesApplied *prometheus.CounterVec
	resourceDuration *prometheus.HistogramVec

	// Agent metrics
	agentCalls    *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec

	// Verification metrics
	verifications *prometheus.CounterVec
	verifyScore   *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
// When metrics are disabled all recording methods are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		appliesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_started_total",
				Help:      "Total number of apply runs started",
			},
			[]string{"mode"},
		),
		appliesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_completed_total",
				Help:      "Total number of apply runs completed",
			},
			[]string{"mode", "status"},
		),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_duration_seconds",
				Help:      "Duration of apply runs in seconds",
				Buckets:   buckets,
			},
			[]string{"mode"},
		),

		resourcesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resources_applied_total",
				Help:      "Total number of resources processed during apply",
			},
			[]string{"action", "outcome"},
		),
		resourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resource_duration_seconds",
				Help:      "Duration of per-resource apply in seconds",
				Buckets:   buckets,
			},
			[]string{"action"},
		),

		agentCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_calls_total",
				Help:      "Total number of agent invocations",
			},
			[]string{"agent", "outcome"},
		),
		agentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_duration_seconds",
				Help:      "Duration of agent invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"agent"},
		),

		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Total number of verification checks run",
			},
			[]string{"level", "outcome"},
		),
		verifyScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "verification_score",
				Help:      "Verification score distribution",
				Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
			},
			[]string{"level"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by classification",
			},
			[]string{"class"},
		),
	}

	collectors := []prometheus.Collector{
		m.appliesStarted,
		m.appliesCompleted,
		m.applyDuration,
		m.resourcesApplied,
		m.resourceDuration,
		m.agentCalls,
		m.agentDuration,
		m.verifications,
		m.verifyScore,
		m.errorsByClass,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}

	return m, nil
}

// RecordApplyStarted increments the started counter for a mode.
func (m *Metrics) RecordApplyStarted(mode string) {
	if m.registry == nil {
		return
	}
	m.appliesStarted.WithLabelValues(mode).Inc()
}

// RecordApplyCompleted records a finished apply run.
func (m *Metrics) RecordApplyCompleted(mode, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.appliesCompleted.WithLabelValues(mode, status).Inc()
	m.applyDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordResource records the outcome of a single resource apply.
// Outcome is one of implemented, partial, failed, skipped.
func (m *Metrics) RecordResource(action, outcome string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.resourcesApplied.WithLabelValues(action, outcome).Inc()
	m.resourceDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordAgentCall records an agent invocation.
func (m *Metrics) RecordAgentCall(agent string, success bool, duration time.Duration) {
	if m.registry == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.agentCalls.WithLabelValues(agent, outcome).Inc()
	m.agentDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordVerification records a verification check and its score.
func (m *Metrics) RecordVerification(level string, passed bool, score float64) {
	if m.registry == nil {
		return
	}
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	m.verifications.WithLabelValues(level, outcome).Inc()
	m.verifyScore.WithLabelValues(level).Observe(score)
}

// RecordError increments the error counter for a classification.
func (m *Metrics) RecordError(class string) {
	if m.registry == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
}

// Handler returns an HTTP handler serving the metrics registry.
// Returns nil when metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing the metrics endpoint. It blocks
// until the server exits. Does nothing when metrics are disabled.
func (m *Metrics) Serve() error {
	if m.registry == nil {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
