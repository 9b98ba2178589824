package backend

import (
	"context"
	"time"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// timeoutBackend bounds each request with a deadline.
type timeoutBackend struct {
	next    ports.Backend
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that enforces request timeouts.
// A request exceeding timeout fails with context.DeadlineExceeded.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next ports.Backend) ports.Backend {
		return &timeoutBackend{
			next:    next,
			timeout: timeout,
		}
	}
}

// Compute executes the request with a timeout context.
func (t *timeoutBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Compute(ctx, req)
}

// Name returns the wrapped backend's name.
func (t *timeoutBackend) Name() string { return t.next.Name() }
