package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for decryption and evaluation.
type Metrics struct {
	config MetricsConfig

	// Decryption metrics
	decryptCalls    *prometheus.CounterVec
	decryptDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec

	// Bridge metrics
	bridgeErrors *prometheus.CounterVec

	// Evaluation metrics
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		decryptCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decrypt_calls_total",
				Help:      "Total number of decryption calls",
			},
			[]string{"operation", "status"},
		),
		decryptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decrypt_duration_seconds",
				Help:      "Duration of decryption calls in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of plaintext cache lookups",
			},
			[]string{"result"},
		),

		bridgeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_errors_total",
				Help:      "Total number of errors raised by the evaluator builtins",
			},
			[]string{"kind"},
		),

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of script evaluations",
			},
			[]string{"status"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of script evaluations in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.decryptCalls,
		m.decryptDuration,
		m.cacheLookups,
		m.bridgeErrors,
		m.evaluations,
		m.evaluationDuration,
	)

	return m, nil
}

// RecordDecrypt records a decryption call with its outcome and duration.
func (m *Metrics) RecordDecrypt(operation, status string, duration time.Duration) {
	if m.decryptCalls == nil {
		return
	}
	m.decryptCalls.WithLabelValues(operation, status).Inc()
	m.decryptDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a plaintext cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordBridgeError records an error raised to the evaluator, by kind
// (type_mismatch, decryption_failed, parse, eval).
func (m *Metrics) RecordBridgeError(kind string) {
	if m.bridgeErrors == nil {
		return
	}
	m.bridgeErrors.WithLabelValues(kind).Inc()
}

// RecordEvaluation records a completed script evaluation.
func (m *Metrics) RecordEvaluation(status string, duration time.Duration) {
	if m.evaluations == nil {
		return
	}
	m.evaluations.WithLabelValues(status).Inc()
	m.evaluationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry, or nil when metrics are
// disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It is a no-op
// when metrics are disabled or no listen address is configured. Serve
// errors are passed to onError.
func (m *Metrics) StartMetricsServer(onError func(error)) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if one was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
