package backend

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// retryBackend implements automatic retry logic with exponential backoff.
// Only transient failures are retried: rate limiting, unavailable services
// and timeouts. A Retry-After hint from the server takes precedence over the
// computed delay, capped at maxDelay.
type retryBackend struct {
	next       ports.Backend
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that retries transient failures up to
// maxRetries times with jittered exponential backoff.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next ports.Backend) ports.Backend {
		return &retryBackend{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Compute executes the request, retrying transient failures.
// It stops early on non-retryable errors, an open circuit and context
// cancellation.
func (r *retryBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		result, err := r.next.Compute(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			return nil, err
		}
		if attempt == r.maxRetries {
			break
		}

		delay := r.calculateDelay(attempt)
		if hint, ok := retryAfter(err); ok {
			delay = min(hint, r.maxDelay)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retryBackend) calculateDelay(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	if r.baseDelay > r.maxDelay>>attempt {
		return r.maxDelay
	}
	delay := r.baseDelay << attempt

	// Jitter of -25% to +25%, computed in float64 so it cannot wrap.
	// #nosec G404 - weak RNG is fine for jitter
	jittered := float64(delay) * (0.75 + rand.Float64()*0.5)
	if jittered >= float64(r.maxDelay) {
		return r.maxDelay
	}
	return time.Duration(jittered)
}

// Name returns the wrapped backend's name.
func (r *retryBackend) Name() string { return r.next.Name() }
