package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all requests to pass through normally.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects all requests immediately until the cooldown expires.
	StateOpen

	// StateHalfOpen lets one request through to test recovery.
	StateHalfOpen
)

// String returns the state name used in metrics and logs.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerMetrics enables observability for circuit breaker behavior.
type CircuitBreakerMetrics interface {
	// RecordState updates the current circuit breaker state metric.
	RecordState(backend string, state CircuitBreakerState)

	// RecordTrip increments the rejected request counter.
	RecordTrip(backend string)

	// RecordSuccess increments the successful request counter.
	RecordSuccess(backend string)

	// RecordFailure increments the failed request counter.
	RecordFailure(backend string)
}

// CircuitBreaker implements the circuit breaker pattern.
// It opens after maxFailures consecutive failures, rejects requests for the
// cooldown, then lets a single probe through in the half-open state.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	lastFailure      time.Time
	probing          bool
}

// NewCircuitBreaker creates a circuit breaker with the specified configuration.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      max(maxFailures, 1),
		cooldownDuration: cooldownDuration,
	}
}

// Call executes fn through the circuit breaker. If the circuit is open it
// returns ErrCircuitOpen without calling fn. Errors for which isFailure
// returns false pass through without affecting the state.
func (cb *CircuitBreaker) Call(fn func() error, isFailure func(error) bool) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err == nil || !isFailure(err))
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldownDuration {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if ok {
		cb.failureCount = 0
		cb.state = StateClosed
		return
	}
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// countsAsFailure reports whether err indicates an unhealthy backend.
// Caller cancellation and rejected requests say nothing about its health.
func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, ErrBadRequest) &&
		!errors.Is(err, ErrUnknownMetric)
}

// circuitBreakerBackend guards a backend with a CircuitBreaker.
type circuitBreakerBackend struct {
	next    ports.Backend
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware creates middleware that opens after maxFailures
// consecutive failures and stays open for cooldown.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics creates circuit breaker middleware
// that reports to metrics, which may be nil.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)

	return func(next ports.Backend) ports.Backend {
		return &circuitBreakerBackend{
			next:    next,
			cb:      cb,
			metrics: metrics,
		}
	}
}

// Compute executes the request through the circuit breaker.
func (c *circuitBreakerBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	var result domain.MetricResult
	err := c.cb.Call(func() error {
		var err error
		result, err = c.next.Compute(ctx, req)
		return err
	}, countsAsFailure)

	if c.metrics != nil {
		name := c.next.Name()
		switch {
		case err == nil:
			c.metrics.RecordSuccess(name)
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordTrip(name)
		default:
			c.metrics.RecordFailure(name)
		}
		c.metrics.RecordState(name, c.cb.GetState())
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

// Name returns the wrapped backend's name.
func (c *circuitBreakerBackend) Name() string { return c.next.Name() }
