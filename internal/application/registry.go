package application

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// Verify interface compliance at compile time.
var (
	_ ports.Registrar    = (*MetricRegistry)(nil)
	_ ports.MetricLookup = (*MetricRegistry)(nil)
)

// maxSuggestionDistance bounds how different a registered id may be from an
// unknown id before it is no longer offered as a suggestion.
const maxSuggestionDistance = 3

// MetricRegistry maps metric ids to metric functions.
// Registration normally happens once at start-up; lookups are safe for
// concurrent use by independent reports.
type MetricRegistry struct {
	// funcs maps metric ids to their functions.
	funcs map[string]ports.MetricFunc
	// mu protects concurrent access to the funcs map.
	mu sync.RWMutex

	logger *slog.Logger
}

// RegistryOption configures a MetricRegistry.
type RegistryOption func(*MetricRegistry)

// WithRegistryLogger sets the logger used to report overwritten ids.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *MetricRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewMetricRegistry creates an empty registry. Built-in metrics are added by
// passing the registry to metrics.RegisterBuiltins.
func NewMetricRegistry(opts ...RegistryOption) *MetricRegistry {
	r := &MetricRegistry{
		funcs:  make(map[string]ports.MetricFunc),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds id to fn. Registering an id twice replaces the earlier
// function; the overwrite is logged so accidental collisions are visible.
func (r *MetricRegistry) Register(id string, fn ports.MetricFunc) error {
	if id == "" {
		return fmt.Errorf("metric id cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("metric function for %q cannot be nil", id)
	}

	r.mu.Lock()
	_, exists := r.funcs[id]
	r.funcs[id] = fn
	r.mu.Unlock()

	if exists {
		r.logger.Warn("metric registration overwritten", "metric_id", id)
	}
	return nil
}

// Lookup returns the function registered under id. Unknown ids fail with
// domain.ErrUnknownMetric, naming the closest registered id when one is near.
func (r *MetricRegistry) Lookup(id string) (ports.MetricFunc, error) {
	r.mu.RLock()
	fn, ok := r.funcs[id]
	r.mu.RUnlock()
	if ok {
		return fn, nil
	}

	if s := r.suggest(id); s != "" {
		return nil, fmt.Errorf("%w: %q (did you mean %q?)", domain.ErrUnknownMetric, id, s)
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMetric, id)
}

// Has reports whether id is registered.
func (r *MetricRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[id]
	return ok
}

// IDs returns every registered id in sorted order.
func (r *MetricRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.funcs))
	for id := range r.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *MetricRegistry) suggest(id string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range r.IDs() {
		if d := levenshtein.ComputeDistance(id, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}
