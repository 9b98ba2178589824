package testutils

import (
	"context"
	"math/rand/v2"
	"sync/atomic"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// CountingMetric wraps a metric function and counts its invocations.
type CountingMetric struct {
	calls atomic.Int64
	fn    ports.MetricFunc
}

// NewCountingMetric returns a counter around fn.
func NewCountingMetric(fn ports.MetricFunc) *CountingMetric {
	return &CountingMetric{fn: fn}
}

// Func returns the wrapped metric function.
func (c *CountingMetric) Func() ports.MetricFunc {
	return func(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
		c.calls.Add(1)
		return c.fn(ctx, data, in)
	}
}

// Calls returns the number of invocations so far.
func (c *CountingMetric) Calls() int { return int(c.calls.Load()) }

// ConstMetric returns a metric function reporting value under field.
func ConstMetric(field string, value float64) ports.MetricFunc {
	return func(context.Context, *domain.Dataset, domain.Inputs) (domain.MetricResult, error) {
		return domain.MetricResult{field: value}, nil
	}
}

// FailingMetric returns a metric function that always fails with err.
func FailingMetric(err error) ports.MetricFunc {
	return func(context.Context, *domain.Dataset, domain.Inputs) (domain.MetricResult, error) {
		return nil, err
	}
}

// Rules builds ordered thresholds from color/expression pairs, e.g.
// Rules(domain.Green, ">= 0.4", domain.Red, "< 0.4"). It panics on
// malformed input.
func Rules(pairs ...any) domain.Thresholds {
	if len(pairs)%2 != 0 {
		panic("testutils.Rules: odd number of arguments")
	}
	out := make(domain.Thresholds, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.MustParseRule(pairs[i].(domain.Color), pairs[i+1].(string)))
	}
	return out
}

// ScoreDataset returns a deterministic scored dataset with the columns used
// by the built-in metrics: actual, predicted, reference_score, period and
// segment. Events occur with probability close to the predicted score.
func ScoreDataset(rows int, seed uint64) *domain.Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	periods := []string{"2024-Q1", "2024-Q2", "2024-Q3", "2024-Q4"}
	segments := []string{"retail", "sme"}

	actual := make([]float64, rows)
	predicted := make([]float64, rows)
	reference := make([]float64, rows)
	period := make([]string, rows)
	segment := make([]string, rows)

	for i := range rows {
		p := rng.Float64()
		predicted[i] = p
		reference[i] = clamp01(p + (rng.Float64()-0.5)*0.1)
		if rng.Float64() < p {
			actual[i] = 1
		}
		period[i] = periods[i%len(periods)]
		segment[i] = segments[i%len(segments)]
	}

	d := domain.NewDataset(rows)
	// Column lengths match by construction.
	_ = d.AddFloat("actual", actual)
	_ = d.AddFloat("predicted", predicted)
	_ = d.AddFloat("reference_score", reference)
	_ = d.AddString("period", period)
	_ = d.AddString("segment", segment)
	return d
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
