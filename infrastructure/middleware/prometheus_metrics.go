// Package middleware provides cross-cutting observability for metric
// computation and report rendering.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-prism/infrastructure/backend"
	"github.com/ahrav/go-prism/internal/ports"
)

// Metric names understood by PrometheusMetrics. Other names fall back to
// the generic operation, state and value series.
const (
	MetricReportsTotal         = "reports_total"
	MetricValue                = "metric_value"
	MetricColorSeverity        = "color_severity"
	MetricBackendRequestsTotal = "backend_requests_total"
	MetricBackendLatency       = "backend_latency_seconds"
)

// PrometheusMetrics implements ports.MetricsCollector and
// backend.CircuitBreakerMetrics on a Prometheus registry. Every series is
// prefixed with prism_.
type PrometheusMetrics struct {
	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	reportsTotal     *prometheus.CounterVec
	metricValue      *prometheus.GaugeVec
	colorSeverity    *prometheus.GaugeVec
	stateGauges      *prometheus.GaugeVec
	values           *prometheus.HistogramVec

	backendRequests *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	circuitState    *prometheus.GaugeVec
	circuitEvents   *prometheus.CounterVec
}

var (
	_ ports.MetricsCollector        = (*PrometheusMetrics)(nil)
	_ backend.CircuitBreakerMetrics = (*PrometheusMetrics)(nil)
)

// NewPrometheusMetrics registers the prism metrics with reg and returns the
// collector. A nil reg selects prometheus.DefaultRegisterer. Registering
// twice on the same registry panics, as with any promauto metric.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		operationLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_operation_duration_seconds",
				Help:    "Duration of report and metric computations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "model"},
		),
		operationCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_operations_total",
				Help: "Total number of operations performed.",
			},
			[]string{"operation", "status"},
		),
		reportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_reports_total",
				Help: "Total number of report computations by final color.",
			},
			[]string{"model", "final", "status"},
		),
		metricValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prism_metric_value",
				Help: "Last computed value of each model metric.",
			},
			[]string{"model", "metric", "color"},
		),
		colorSeverity: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prism_color_severity",
				Help: "Last RAG color as severity: 1 green, 2 yellow, 3 red.",
			},
			[]string{"model", "level", "name"},
		),
		stateGauges: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prism_state",
				Help: "Current state values.",
			},
			[]string{"metric", "model"},
		),
		values: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_values",
				Help:    "Distribution of recorded values.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
		backendRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_backend_requests_total",
				Help: "Total number of metric backend requests.",
			},
			[]string{"backend", "metric_id", "status"},
		),
		backendLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prism_backend_latency_seconds",
				Help:    "Latency of metric backend requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "metric_id", "status"},
		),
		circuitState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prism_backend_circuit_state",
				Help: "Circuit breaker state per backend: 0 closed, 1 open, 2 half open.",
			},
			[]string{"backend"},
		),
		circuitEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prism_backend_circuit_events_total",
				Help: "Circuit breaker outcomes per backend.",
			},
			[]string{"backend", "event"},
		),
	}
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.operationLatency.WithLabelValues(operation, label(labels, "model")).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricReportsTotal:
		pm.reportsTotal.WithLabelValues(
			label(labels, "model"),
			label(labels, "final"),
			label(labels, "status"),
		).Add(value)
	case MetricBackendRequestsTotal:
		pm.backendRequests.WithLabelValues(
			label(labels, "backend"),
			label(labels, "metric_id"),
			label(labels, "status"),
		).Add(value)
	default:
		status := labels["status"]
		if status == "" {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricValue:
		pm.metricValue.WithLabelValues(
			label(labels, "model"),
			label(labels, "metric"),
			label(labels, "color"),
		).Set(value)
	case MetricColorSeverity:
		pm.colorSeverity.WithLabelValues(
			label(labels, "model"),
			label(labels, "level"),
			label(labels, "name"),
		).Set(value)
	default:
		pm.stateGauges.WithLabelValues(metric, label(labels, "model")).Set(value)
	}
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == MetricBackendLatency {
		pm.backendLatency.WithLabelValues(
			label(labels, "backend"),
			label(labels, "metric_id"),
			label(labels, "status"),
		).Observe(value)
		return
	}
	pm.values.WithLabelValues(metric).Observe(value)
}

// RecordState implements backend.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordState(name string, state backend.CircuitBreakerState) {
	pm.circuitState.WithLabelValues(name).Set(float64(state))
}

// RecordTrip implements backend.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordTrip(name string) {
	pm.circuitEvents.WithLabelValues(name, "rejected").Inc()
}

// RecordSuccess implements backend.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordSuccess(name string) {
	pm.circuitEvents.WithLabelValues(name, "success").Inc()
}

// RecordFailure implements backend.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordFailure(name string) {
	pm.circuitEvents.WithLabelValues(name, "failure").Inc()
}
