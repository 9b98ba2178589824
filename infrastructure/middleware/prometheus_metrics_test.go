package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-prism/infrastructure/backend"
)

// sample returns the metric of family name whose labels equal want.
func sample(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) != len(want) {
				continue
			}
			for _, lp := range m.GetLabel() {
				if want[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m
		}
	}
	t.Fatalf("no %s sample with labels %v", name, want)
	return nil
}

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestNewPrometheusMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)
	assert.NotNil(t, pm.operationLatency)
	assert.NotNil(t, pm.reportsTotal)
	assert.NotNil(t, pm.backendRequests)
	assert.NotNil(t, pm.circuitState)

	t.Run("duplicate registration panics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		NewPrometheusMetrics(reg)
		assert.Panics(t, func() { NewPrometheusMetrics(reg) })
	})
}

func TestPrometheusMetrics_RecordLatency(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordLatency("report_compute", 250*time.Millisecond, map[string]string{"model": "credit_v1"})
	pm.RecordLatency("report_compute", 750*time.Millisecond, map[string]string{"model": "credit_v1"})
	pm.RecordLatency("metric_compute", time.Second, nil)

	h := sample(t, reg, "prism_operation_duration_seconds", map[string]string{
		"operation": "report_compute", "model": "credit_v1",
	}).GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 1.0, h.GetSampleSum(), 1e-9)

	unknown := sample(t, reg, "prism_operation_duration_seconds", map[string]string{
		"operation": "metric_compute", "model": "unknown",
	})
	assert.Equal(t, uint64(1), unknown.GetHistogram().GetSampleCount())
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	tests := []struct {
		name       string
		metric     string
		labels     map[string]string
		wantFamily string
		wantLabels map[string]string
	}{
		{
			name:       "reports",
			metric:     MetricReportsTotal,
			labels:     map[string]string{"model": "credit_v1", "final": "yellow", "status": "success"},
			wantFamily: "prism_reports_total",
			wantLabels: map[string]string{"model": "credit_v1", "final": "yellow", "status": "success"},
		},
		{
			name:       "backend requests",
			metric:     MetricBackendRequestsTotal,
			labels:     map[string]string{"backend": "risk", "metric_id": "psi_calculator", "status": "timeout"},
			wantFamily: "prism_backend_requests_total",
			wantLabels: map[string]string{"backend": "risk", "metric_id": "psi_calculator", "status": "timeout"},
		},
		{
			name:       "generic with default status",
			metric:     "reports_started_total",
			labels:     map[string]string{"model": "credit_v1"},
			wantFamily: "prism_operations_total",
			wantLabels: map[string]string{"operation": "reports_started_total", "status": "success"},
		},
		{
			name:       "missing labels become unknown",
			metric:     MetricReportsTotal,
			wantFamily: "prism_reports_total",
			wantLabels: map[string]string{"model": "unknown", "final": "unknown", "status": "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, reg := newTestMetrics(t)
			pm.RecordCounter(tt.metric, 1, tt.labels)
			pm.RecordCounter(tt.metric, 2, tt.labels)

			m := sample(t, reg, tt.wantFamily, tt.wantLabels)
			assert.Equal(t, 3.0, m.GetCounter().GetValue())
		})
	}
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordGauge(MetricValue, 0.42, map[string]string{"model": "m", "metric": "rank_ordering", "color": "green"})
	pm.RecordGauge(MetricValue, 0.38, map[string]string{"model": "m", "metric": "rank_ordering", "color": "green"})
	pm.RecordGauge(MetricColorSeverity, 3, map[string]string{"model": "m", "level": "final", "name": "m"})
	pm.RecordGauge("batch_size", 4, nil)

	assert.Equal(t, 0.38, sample(t, reg, "prism_metric_value", map[string]string{
		"model": "m", "metric": "rank_ordering", "color": "green",
	}).GetGauge().GetValue())
	assert.Equal(t, 3.0, sample(t, reg, "prism_color_severity", map[string]string{
		"model": "m", "level": "final", "name": "m",
	}).GetGauge().GetValue())
	assert.Equal(t, 4.0, sample(t, reg, "prism_state", map[string]string{
		"metric": "batch_size", "model": "unknown",
	}).GetGauge().GetValue())
}

func TestPrometheusMetrics_RecordHistogram(t *testing.T) {
	pm, reg := newTestMetrics(t)

	labels := map[string]string{"backend": "risk", "metric_id": "ks_statistic", "status": "success"}
	pm.RecordHistogram(MetricBackendLatency, 0.2, labels)
	pm.RecordHistogram("psi_value", 0.07, nil)

	assert.Equal(t, uint64(1), sample(t, reg, "prism_backend_latency_seconds", labels).GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.07, sample(t, reg, "prism_values", map[string]string{
		"metric": "psi_value",
	}).GetHistogram().GetSampleSum(), 1e-9)
}

func TestPrometheusMetrics_CircuitBreaker(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordFailure("risk")
	pm.RecordFailure("risk")
	pm.RecordTrip("risk")
	pm.RecordSuccess("risk")
	pm.RecordState("risk", backend.StateOpen)

	assert.Equal(t, 2.0, sample(t, reg, "prism_backend_circuit_events_total", map[string]string{
		"backend": "risk", "event": "failure",
	}).GetCounter().GetValue())
	assert.Equal(t, 1.0, sample(t, reg, "prism_backend_circuit_events_total", map[string]string{
		"backend": "risk", "event": "rejected",
	}).GetCounter().GetValue())
	assert.Equal(t, 1.0, sample(t, reg, "prism_backend_circuit_state", map[string]string{
		"backend": "risk",
	}).GetGauge().GetValue())
}
