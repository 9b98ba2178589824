package domain

import (
	"maps"
	"slices"
)

// ModelSpec is a fully parsed and validated model configuration.
type ModelSpec struct {
	ID        string
	Name      string
	Version   string
	Developer string
	RepoURL   string
	Tags      []string

	// Metrics are in configuration order, which is also compute order.
	Metrics []MetricSpec
	Sectors SectorPolicy
	Final   FinalAggregation
}

// SectorNames returns the distinct metric sectors in order of first appearance.
func (m ModelSpec) SectorNames() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, spec := range m.Metrics {
		if _, ok := seen[spec.Sector]; ok {
			continue
		}
		seen[spec.Sector] = struct{}{}
		out = append(out, spec.Sector)
	}
	return out
}

// HasTag reports whether the model carries tag.
func (m ModelSpec) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MetricEntry is the computed state of one metric.
type MetricEntry struct {
	Spec   MetricSpec
	Result MetricResult
	Value  float64
	Color  Color
}

// ComputeCache holds every computed metric, sector and final color of one
// model. It is built with a CacheBuilder and never changes afterwards.
type ComputeCache struct {
	metrics     map[string]MetricEntry
	order       []string
	sectors     map[string]Color
	sectorOrder []string
	final       Color
}

// Metric returns the entry for key.
func (c *ComputeCache) Metric(key string) (MetricEntry, bool) {
	e, ok := c.metrics[key]
	if !ok {
		return MetricEntry{}, false
	}
	e.Result = maps.Clone(e.Result)
	e.Spec.Inputs = maps.Clone(e.Spec.Inputs)
	e.Spec.Thresholds = slices.Clone(e.Spec.Thresholds)
	return e, true
}

// Keys returns the metric keys in compute order.
func (c *ComputeCache) Keys() []string { return append([]string(nil), c.order...) }

// SectorColors returns a copy of the sector colors.
func (c *ComputeCache) SectorColors() map[string]Color { return maps.Clone(c.sectors) }

// Sectors returns sector names in order of first appearance.
func (c *ComputeCache) Sectors() []string { return append([]string(nil), c.sectorOrder...) }

// FinalColor returns the model color.
func (c *ComputeCache) FinalColor() Color { return c.final }

// CacheBuilder accumulates results during computation. It is private to a
// single computation and is discarded if computation fails.
type CacheBuilder struct {
	cache *ComputeCache
}

// NewCacheBuilder returns an empty builder.
func NewCacheBuilder() *CacheBuilder {
	return &CacheBuilder{cache: &ComputeCache{
		metrics: make(map[string]MetricEntry),
		sectors: make(map[string]Color),
	}}
}

// AddMetric records a computed metric. Keys are recorded in call order.
func (b *CacheBuilder) AddMetric(e MetricEntry) {
	if _, ok := b.cache.metrics[e.Spec.Key]; !ok {
		b.cache.order = append(b.cache.order, e.Spec.Key)
	}
	b.cache.metrics[e.Spec.Key] = e
}

// SectorMembers groups recorded metric colors by sector, returning the
// sectors in order of first appearance.
func (b *CacheBuilder) SectorMembers() ([]string, map[string][]KeyedColor) {
	var order []string
	groups := make(map[string][]KeyedColor)
	for _, key := range b.cache.order {
		e := b.cache.metrics[key]
		if _, ok := groups[e.Spec.Sector]; !ok {
			order = append(order, e.Spec.Sector)
		}
		groups[e.Spec.Sector] = append(groups[e.Spec.Sector], KeyedColor{Key: key, Color: e.Color})
	}
	return order, groups
}

// SetSector records a sector color.
func (b *CacheBuilder) SetSector(name string, c Color) {
	if _, ok := b.cache.sectors[name]; !ok {
		b.cache.sectorOrder = append(b.cache.sectorOrder, name)
	}
	b.cache.sectors[name] = c
}

// SectorColors returns a copy of the sector colors recorded so far.
func (b *CacheBuilder) SectorColors() map[string]Color { return maps.Clone(b.cache.sectors) }

// Freeze records the final color and returns the finished cache. The
// builder must not be used afterwards.
func (b *CacheBuilder) Freeze(final Color) *ComputeCache {
	c := b.cache
	c.final = final
	b.cache = nil
	return c
}
