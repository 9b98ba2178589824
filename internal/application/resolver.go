package application

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// Resolver dispatches a metric to the registry or to a named backend.
// It holds no state beyond its collaborators and never caches or retries;
// retries belong to the backend client.
type Resolver struct {
	registry ports.MetricLookup
	backends map[string]ports.Backend
}

// NewResolver creates a resolver over registry and the given backends,
// keyed by their Name.
func NewResolver(registry ports.MetricLookup, backends ...ports.Backend) *Resolver {
	r := &Resolver{
		registry: registry,
		backends: make(map[string]ports.Backend, len(backends)),
	}
	for _, b := range backends {
		if b != nil {
			r.backends[b.Name()] = b
		}
	}
	return r
}

// Backends returns the names of the configured backends.
func (r *Resolver) Backends() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// Resolve computes spec and returns its raw result.
//
// Local metrics are looked up in the registry and called with data and the
// configured inputs. Backend metrics are sent to the backend named by the
// source; a missing backend fails with domain.ErrBackendUnavailable rather
// than falling back to a local function. The returned error wraps one of
// domain.ErrUnknownMetric, domain.ErrMetricFailed,
// domain.ErrBackendUnavailable or domain.ErrBackendError.
func (r *Resolver) Resolve(
	ctx context.Context,
	spec domain.MetricSpec,
	data *domain.Dataset,
	bctx map[string]string,
) (domain.MetricResult, error) {
	var (
		result domain.MetricResult
		err    error
	)

	switch src := spec.Source.(type) {
	case nil, domain.LocalSource:
		result, err = r.resolveLocal(ctx, spec, data)
	case domain.BackendSource:
		result, err = r.resolveBackend(ctx, src, spec, bctx)
	default:
		return nil, fmt.Errorf("%w: unsupported source %T", domain.ErrInvalidConfiguration, src)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = domain.MetricResult{}
	}
	return result, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, spec domain.MetricSpec, data *domain.Dataset) (domain.MetricResult, error) {
	if r.registry == nil {
		return nil, fmt.Errorf("%w: %q (no registry configured)", domain.ErrUnknownMetric, spec.MetricID)
	}
	fn, err := r.registry.Lookup(spec.MetricID)
	if err != nil {
		return nil, err
	}

	result, err := fn(ctx, data, maps.Clone(spec.Inputs))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMetricFailed, spec.MetricID, err)
	}
	return result, nil
}

func (r *Resolver) resolveBackend(
	ctx context.Context,
	src domain.BackendSource,
	spec domain.MetricSpec,
	bctx map[string]string,
) (domain.MetricResult, error) {
	backend, ok := r.backends[src.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrBackendUnavailable, src.Name)
	}

	req := ports.BackendRequest{
		MetricID: spec.MetricID,
		Inputs:   maps.Clone(spec.Inputs),
		Context:  maps.Clone(bctx),
	}
	result, err := backend.Compute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrBackendError, src.Name, err)
	}
	return result, nil
}
