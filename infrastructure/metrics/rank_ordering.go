package metrics

import (
	"context"
	"fmt"
	"math"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// Metric ids of the rank ordering metrics.
const (
	GiniID = "gini_coefficient"
	KSID   = "ks_statistic"
)

// allSegments disables segment filtering.
const allSegments = "all"

// GiniConfig holds the inputs of the Gini coefficient.
type GiniConfig struct {
	columns `yaml:",inline"`
	// Segment restricts the computation to rows whose SegmentCol equals it.
	// "all" uses every row.
	Segment    string `yaml:"segment" validate:"required"`
	SegmentCol string `yaml:"segment_col" validate:"required"`
}

// DefaultGiniConfig returns the Gini defaults.
func DefaultGiniConfig() GiniConfig {
	return GiniConfig{columns: defaultColumns(), Segment: allSegments, SegmentCol: "segment"}
}

// Gini computes the Gini coefficient of the predicted scores, 2*AUC(Lorenz)-1,
// where the Lorenz curve is the cumulative share of events over the
// population ranked by descending score.
//
// The result holds gini_value, a per-decile summary table (count,
// event_rate, avg_score) and the Lorenz curve as lorenz_chart.
func Gini(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
	cfg := DefaultGiniConfig()
	if err := decodeInputs(in, &cfg); err != nil {
		return nil, err
	}

	if cfg.Segment != allSegments {
		filtered, err := data.FilterEqual(cfg.SegmentCol, cfg.Segment)
		if err != nil {
			return nil, err
		}
		data = filtered
	}

	actual, predicted, err := cfg.load(data)
	if err != nil {
		return nil, err
	}
	n := len(actual)
	if n == 0 {
		return nil, fmt.Errorf("%w: no rows for segment %q", ErrInsufficientData, cfg.Segment)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	order := rankDescending(predicted)
	cum := make([]float64, n)
	var running float64
	for i, row := range order {
		running += actual[row]
		cum[i] = running
	}
	total := cum[n-1]
	if total == 0 {
		total = 1
	}

	lorenz := domain.Series{X: make([]float64, n+1), Y: make([]float64, n+1)}
	for i := 0; i <= n; i++ {
		lorenz.X[i] = float64(i) / float64(n)
		if i > 0 {
			lorenz.Y[i] = cum[i-1] / total
		}
	}
	gini := 2*trapezoid(lorenz.Y, lorenz.X) - 1

	return domain.MetricResult{
		"gini_value":   round6(gini),
		"summary":      decileSummary(order, actual, predicted),
		"lorenz_chart": lorenz,
	}, nil
}

// decileSummary groups ranked rows by decile.
func decileSummary(order []int, actual, predicted []float64) domain.Table {
	type bucket struct {
		count         int
		events, score float64
	}
	var buckets [10]bucket
	for pos, row := range order {
		b := &buckets[decile(pos, len(order))-1]
		b.count++
		b.events += actual[row]
		b.score += predicted[row]
	}

	t := domain.Table{Columns: []string{"decile", "count", "event_rate", "avg_score"}}
	for i, b := range buckets {
		if b.count == 0 {
			continue
		}
		c := float64(b.count)
		t.Rows = append(t.Rows, []any{i + 1, b.count, round6(b.events / c), round6(b.score / c)})
	}
	return t
}

// KSConfig holds the inputs of the KS statistic.
type KSConfig struct {
	columns `yaml:",inline"`
}

// DefaultKSConfig returns the KS defaults.
func DefaultKSConfig() KSConfig {
	return KSConfig{columns: defaultColumns()}
}

// KS computes the Kolmogorov-Smirnov statistic on score deciles: the maximum
// distance between the cumulative event and non-event rates.
//
// The result holds ks_value and ks_table with one row per decile.
func KS(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
	cfg := DefaultKSConfig()
	if err := decodeInputs(in, &cfg); err != nil {
		return nil, err
	}
	actual, predicted, err := cfg.load(data)
	if err != nil {
		return nil, err
	}
	n := len(actual)
	if n == 0 {
		return nil, fmt.Errorf("%w: ks_statistic needs at least one row", ErrInsufficientData)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events float64
	for _, a := range actual {
		events += a
	}
	nonEvents := float64(n) - events

	type bucket struct {
		count  int
		events float64
	}
	var buckets [10]bucket
	for pos, row := range rankDescending(predicted) {
		b := &buckets[decile(pos, n)-1]
		b.count++
		b.events += actual[row]
	}

	table := domain.Table{Columns: []string{
		"decile", "count", "events", "non_events", "cum_event_rate", "cum_non_event_rate", "ks",
	}}
	var cumEvents, cumNonEvents, ks float64
	for i, b := range buckets {
		if b.count == 0 {
			continue
		}
		non := float64(b.count) - b.events
		cumEvents += b.events
		cumNonEvents += non
		eventRate := cumEvents / math.Max(events, 1)
		nonEventRate := cumNonEvents / math.Max(nonEvents, 1)
		dist := math.Abs(eventRate - nonEventRate)
		ks = math.Max(ks, dist)
		table.Rows = append(table.Rows, []any{
			i + 1, b.count, b.events, non, round6(eventRate), round6(nonEventRate), round6(dist),
		})
	}

	return domain.MetricResult{
		"ks_value": round6(ks),
		"ks_table": table,
	}, nil
}

// RegisterRankOrdering registers gini_coefficient and ks_statistic.
func RegisterRankOrdering(r ports.Registrar) error {
	if err := r.Register(GiniID, Gini); err != nil {
		return err
	}
	return r.Register(KSID, KS)
}
