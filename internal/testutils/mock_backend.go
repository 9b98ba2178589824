// Package testutils provides deterministic test doubles and fixtures shared
// by package tests.
package testutils

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// MockBackend implements ports.Backend with pre-configured results for
// consistent testing.
// It records every request so tests can assert on what was sent.
type MockBackend struct {
	name string

	mu sync.Mutex
	// results maps metric ids to canned results.
	results map[string]domain.MetricResult
	// errs maps metric ids to canned failures.
	errs map[string]error
	// transient maps metric ids to a failure returned for the next n calls.
	transient map[string]transientFailure
	// delay is applied to every call before answering.
	delay time.Duration
	// requests records every Compute call in order.
	requests []ports.BackendRequest
}

type transientFailure struct {
	remaining int
	err       error
}

var _ ports.Backend = (*MockBackend)(nil)

// NewMockBackend creates a backend that answers to name.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{
		name:      name,
		results:   make(map[string]domain.MetricResult),
		errs:      make(map[string]error),
		transient: make(map[string]transientFailure),
	}
}

// SetResult configures the result returned for metricID.
func (m *MockBackend) SetResult(metricID string, result domain.MetricResult) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[metricID] = result
	return m
}

// SetError configures metricID to fail with err.
func (m *MockBackend) SetError(metricID string, err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[metricID] = err
	return m
}

// ClearError removes a failure configured with SetError.
func (m *MockBackend) ClearError(metricID string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errs, metricID)
	return m
}

// FailNext makes the next n calls for metricID fail with err, after which
// the configured result or error applies again.
func (m *MockBackend) FailNext(metricID string, n int, err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transient[metricID] = transientFailure{remaining: n, err: err}
	return m
}

// SetDelay makes every call wait d, or until the context is done.
func (m *MockBackend) SetDelay(d time.Duration) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Name implements ports.Backend.
func (m *MockBackend) Name() string { return m.name }

// Compute implements ports.Backend. Every call is recorded, including
// calls cancelled through ctx. Unknown metric ids fail with
// ports.ErrInvalidResponse.
func (m *MockBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tf, ok := m.transient[req.MetricID]; ok && tf.remaining > 0 {
		tf.remaining--
		m.transient[req.MetricID] = tf
		return nil, tf.err
	}
	if err, ok := m.errs[req.MetricID]; ok {
		return nil, err
	}
	res, ok := m.results[req.MetricID]
	if !ok {
		return nil, fmt.Errorf("%w: no result for %q", ports.ErrInvalidResponse, req.MetricID)
	}
	return maps.Clone(res), nil
}

// Requests returns a copy of the recorded requests.
func (m *MockBackend) Requests() []ports.BackendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.BackendRequest(nil), m.requests...)
}

// CallCount returns how many times Compute was called for metricID.
func (m *MockBackend) CallCount(metricID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.MetricID == metricID {
			n++
		}
	}
	return n
}
