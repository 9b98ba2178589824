package backend

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// metricsBackend records latency and request counts per backend and metric.
type metricsBackend struct {
	next      ports.Backend
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that reports backend_latency_seconds
// and backend_requests_total to collector. Both carry backend, metric_id and
// status labels; status is one of success, circuit_open, timeout or error.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next ports.Backend) ports.Backend {
		return &metricsBackend{
			next:      next,
			collector: collector,
		}
	}
}

// Compute executes the request and records its outcome.
func (m *metricsBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	start := time.Now()
	result, err := m.next.Compute(ctx, req)

	if m.collector != nil {
		labels := map[string]string{
			"backend":   m.next.Name(),
			"metric_id": req.MetricID,
			"status":    requestStatus(err),
		}
		m.collector.RecordHistogram("backend_latency_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("backend_requests_total", 1, labels)
	}

	return result, err
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ports.ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// Name returns the wrapped backend's name.
func (m *metricsBackend) Name() string { return m.next.Name() }
