package backend

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ahrav/go-prism/internal/ports"
)

// ErrBackendNotFound is returned by Registry.Get for an unknown name.
var ErrBackendNotFound = errors.New("backend not found")

// Registry holds the named backends metric sources refer to.
// Backends built from Config get the standard middleware chain with the
// registry's observability settings.
//
// Usage:
//
//	reg, err := backend.NewRegistryFromConfigs(map[string]backend.Config{
//	    "risk-engine": {BaseURL: "https://risk.example.com/api", APIKeyEnv: "RISK_API_KEY"},
//	}, backend.Observability{Collector: collector})
//	resolver := application.NewResolver(metrics, reg.Backends()...)
type Registry struct {
	mu       sync.RWMutex
	backends map[string]ports.Backend
	obs      Observability
}

// NewRegistry creates an empty registry.
func NewRegistry(obs Observability) *Registry {
	return &Registry{
		backends: make(map[string]ports.Backend),
		obs:      obs,
	}
}

// NewRegistryFromConfigs creates a registry with one backend per entry.
// An empty Config.Name takes the map key; a different name is an error.
// Backends are built in sorted key order so failures are deterministic.
func NewRegistryFromConfigs(configs map[string]Config, obs Observability) (*Registry, error) {
	r := NewRegistry(obs)
	for _, key := range slices.Sorted(maps.Keys(configs)) {
		cfg := configs[key]
		if cfg.Name == "" {
			cfg.Name = key
		}
		if cfg.Name != key {
			return nil, fmt.Errorf("backend %q: name %q does not match its key", key, cfg.Name)
		}
		if err := r.Register(cfg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register builds an HTTP backend from cfg and adds it under cfg.Name.
func (r *Registry) Register(cfg Config) error {
	b, err := NewStandard(cfg, r.obs)
	if err != nil {
		return err
	}
	return r.Add(b)
}

// Add registers an already constructed backend under its Name.
// Names must be unique.
func (r *Registry) Add(b ports.Backend) error {
	if b == nil {
		return errors.New("backend cannot be nil")
	}
	name := b.Name()
	if name == "" {
		return errors.New("backend name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("backend %q already registered", name)
	}
	r.backends[name] = b
	return nil
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (ports.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotFound, name)
	}
	return b, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.backends))
}

// Backends returns the registered backends ordered by name.
func (r *Registry) Backends() []ports.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.Backend, 0, len(r.backends))
	for _, name := range slices.Sorted(maps.Keys(r.backends)) {
		out = append(out, r.backends[name])
	}
	return out
}
