package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-prism/internal/domain"
)

// BackendRequest asks an external backend to compute one metric.
type BackendRequest struct {
	// MetricID is the backend's identifier for the computation.
	MetricID string `json:"metric_id"`

	// Inputs are the configured named arguments of the metric.
	Inputs domain.Inputs `json:"inputs,omitempty"`

	// Context carries caller-supplied key/value pairs, e.g. model id and
	// reporting period, that the backend may need to locate its data.
	Context map[string]string `json:"context,omitempty"`
}

// Backend computes metrics outside the process, e.g. in a risk engine.
// Implementations handle transport, authentication and retries; callers
// only see a result or an error.
type Backend interface {
	// Compute runs req.MetricID and returns its named result.
	// The context controls cancellation and deadlines.
	Compute(ctx context.Context, req BackendRequest) (domain.MetricResult, error)

	// Name returns the source tag this backend answers to.
	Name() string
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like renders, errors, etc.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like metric values.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// ComputeObserver receives notifications as a report is computed.
// Implementations must be safe for concurrent use because independent
// reports may share one observer.
type ComputeObserver interface {
	// OnComputeStart is called when a report leaves the uninitialized state.
	OnComputeStart(ctx context.Context, modelID string, metrics int)

	// OnMetricColored is called after each metric has been evaluated.
	OnMetricColored(ctx context.Context, modelID string, entry domain.MetricEntry, elapsed time.Duration)

	// OnComputeEnd is called once with the final color, or with err set
	// when computation failed.
	OnComputeEnd(ctx context.Context, modelID string, final domain.Color, err error, elapsed time.Duration)
}

// DatasetLoader reads model input data from a file.
type DatasetLoader interface {
	// Load reads the file at path into a dataset.
	Load(ctx context.Context, path string) (*domain.Dataset, error)
}
