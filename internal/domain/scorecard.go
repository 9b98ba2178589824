package domain

// ScorecardRow is one metric line of a scorecard.
type ScorecardRow struct {
	Key      string
	MetricID string
	Sector   string
	Value    float64
	Color    Color
}

// ScorecardSector is a sector with its metrics and rolled-up color.
type ScorecardSector struct {
	Name    string
	Color   Color
	Metrics []ScorecardRow
}

// Scorecard is a read-only summary of a computed model, used by renderers.
type Scorecard struct {
	ModelID      string
	ModelName    string
	ModelVersion string
	Sectors      []ScorecardSector
	Final        Color
}

// NewScorecard builds a scorecard from a frozen cache. Sectors and metrics
// appear in compute order.
func NewScorecard(model ModelSpec, cache *ComputeCache) Scorecard {
	sc := Scorecard{
		ModelID:      model.ID,
		ModelName:    model.Name,
		ModelVersion: model.Version,
		Final:        cache.FinalColor(),
	}

	index := make(map[string]int)
	for _, name := range cache.Sectors() {
		index[name] = len(sc.Sectors)
		sc.Sectors = append(sc.Sectors, ScorecardSector{Name: name, Color: cache.sectors[name]})
	}
	for _, key := range cache.Keys() {
		e := cache.metrics[key]
		i, ok := index[e.Spec.Sector]
		if !ok {
			continue
		}
		sc.Sectors[i].Metrics = append(sc.Sectors[i].Metrics, ScorecardRow{
			Key:      key,
			MetricID: e.Spec.MetricID,
			Sector:   e.Spec.Sector,
			Value:    e.Value,
			Color:    e.Color,
		})
	}
	return sc
}

// Rows returns every metric row in compute order.
func (s Scorecard) Rows() []ScorecardRow {
	var out []ScorecardRow
	for _, sec := range s.Sectors {
		out = append(out, sec.Metrics...)
	}
	return out
}
