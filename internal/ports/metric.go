// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-prism/internal/domain"
)

// MetricFunc computes one metric over a dataset.
//
// Implementations must be pure with respect to their inputs: they read the
// dataset and inputs and return a named result that includes the scalar
// used for RAG evaluation. They must not retain or modify data.
//
// Example:
//
//	func gini(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
//	    ...
//	    return domain.MetricResult{"gini": g}, nil
//	}
type MetricFunc func(ctx context.Context, data *domain.Dataset, inputs domain.Inputs) (domain.MetricResult, error)

// Registrar is the write side of the metric registry. Metric packages
// expose a Register(Registrar) function that adds their functions.
type Registrar interface {
	// Register binds id to fn. A later registration of the same id
	// replaces the earlier one.
	Register(id string, fn MetricFunc) error
}

// MetricLookup is the read side of the metric registry.
type MetricLookup interface {
	// Lookup returns the function registered under id, or an error
	// wrapping domain.ErrUnknownMetric.
	Lookup(id string) (MetricFunc, error)

	// IDs returns every registered id in sorted order.
	IDs() []string
}
