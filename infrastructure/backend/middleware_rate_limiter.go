package backend

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// rateLimitedBackend implements rate limiting using a token bucket.
// All requests through one middleware instance share its bucket.
type rateLimitedBackend struct {
	next    ports.Backend
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting using
// a token bucket. The limit parameter sets requests per second, while burst
// allows temporary spikes above the sustained rate.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.Backend) ports.Backend {
		return &rateLimitedBackend{
			next:    next,
			limiter: limiter,
		}
	}
}

// Compute waits for a token before forwarding the request.
func (r *rateLimitedBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Compute(ctx, req)
}

// Name returns the wrapped backend's name.
func (r *rateLimitedBackend) Name() string { return r.next.Name() }
