package testutils

import (
	"maps"
	"sync"
	"time"

	"github.com/ahrav/go-prism/internal/ports"
)

// Sample is one value recorded by a MockCollector.
type Sample struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// MockCollector implements ports.MetricsCollector by recording every call.
type MockCollector struct {
	mu         sync.Mutex
	latencies  []Sample
	counters   []Sample
	gauges     []Sample
	histograms []Sample
}

var _ ports.MetricsCollector = (*MockCollector)(nil)

// NewMockCollector creates an empty collector.
func NewMockCollector() *MockCollector { return &MockCollector{} }

// RecordLatency implements ports.MetricsCollector.
func (m *MockCollector) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies = append(m.latencies, Sample{operation, d.Seconds(), maps.Clone(labels)})
}

// RecordCounter implements ports.MetricsCollector.
func (m *MockCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, Sample{metric, value, maps.Clone(labels)})
}

// RecordGauge implements ports.MetricsCollector.
func (m *MockCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = append(m.gauges, Sample{metric, value, maps.Clone(labels)})
}

// RecordHistogram implements ports.MetricsCollector.
func (m *MockCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, Sample{metric, value, maps.Clone(labels)})
}

// Counters returns the counter samples recorded under name.
func (m *MockCollector) Counters(name string) []Sample { return m.filter(&m.counters, name) }

// Histograms returns the histogram samples recorded under name.
func (m *MockCollector) Histograms(name string) []Sample { return m.filter(&m.histograms, name) }

// Gauges returns the gauge samples recorded under name.
func (m *MockCollector) Gauges(name string) []Sample { return m.filter(&m.gauges, name) }

// Latencies returns the latency samples recorded under operation.
func (m *MockCollector) Latencies(operation string) []Sample { return m.filter(&m.latencies, operation) }

func (m *MockCollector) filter(samples *[]Sample, name string) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Sample
	for _, s := range *samples {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
