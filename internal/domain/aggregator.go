package domain

import (
	"fmt"
	"math"
	"sort"
)

// SectorMethod names a strategy for combining the metric colors of one sector.
type SectorMethod string

// Supported sector aggregation methods.
const (
	SectorWorst    SectorMethod = "worst_color"
	SectorBest     SectorMethod = "best_color"
	SectorMajority SectorMethod = "majority"
	// SectorWeighted scores colors green=3, yellow=2, red=1, takes the
	// weighted mean and maps it back to a color through thresholds.
	SectorWeighted SectorMethod = "weighted_average"
)

// FinalMethod names a strategy for combining sector colors into the model color.
type FinalMethod string

// Supported final aggregation methods.
const (
	FinalWorst  FinalMethod = "worst_color"
	FinalMatrix FinalMethod = "matrix"
)

// colorScores are the weighted_average scores per color.
var colorScores = map[Color]float64{Green: 3, Yellow: 2, Red: 1}

// AggregateSector combines colors with one of the unweighted sector methods.
//
// worst_color returns the most severe color and best_color the least severe.
// majority returns the most frequent color; ties go to the worse color.
// It returns ErrEmptyColors for an empty input and ErrUnknownMethod for
// weighted_average (see AggregateWeighted) or an unknown name.
func AggregateSector(colors []Color, method SectorMethod) (Color, error) {
	if len(colors) == 0 {
		return 0, ErrEmptyColors
	}
	for _, c := range colors {
		if !c.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidColor, uint8(c))
		}
	}

	switch method {
	case SectorWorst:
		out := colors[0]
		for _, c := range colors[1:] {
			out = Worse(out, c)
		}
		return out, nil
	case SectorBest:
		out := colors[0]
		for _, c := range colors[1:] {
			out = Better(out, c)
		}
		return out, nil
	case SectorMajority:
		counts := make(map[Color]int, len(AllColors))
		for _, c := range colors {
			counts[c]++
		}
		var out Color
		best := -1
		// Walking best to worst with >= lets the worse color win a tie.
		for _, c := range AllColors {
			if n := counts[c]; n > 0 && n >= best {
				out, best = c, n
			}
		}
		return out, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// KeyedColor is a metric color together with the metric key that produced it.
type KeyedColor struct {
	Key   string
	Color Color
}

// AggregateWeighted computes the weighted mean score of colors and converts
// it back to a color using ts, or DefaultWeightedThresholds when ts is empty.
// Every metric key must have a weight and the weights must not sum to zero.
func AggregateWeighted(colors []KeyedColor, weights map[string]float64, ts Thresholds) (Color, error) {
	if len(colors) == 0 {
		return 0, ErrEmptyColors
	}
	if len(ts) == 0 {
		ts = DefaultWeightedThresholds
	}

	var sum, total float64
	for _, kc := range colors {
		score, ok := colorScores[kc.Color]
		if !ok {
			return 0, fmt.Errorf("%w: metric %q", ErrInvalidColor, kc.Key)
		}
		w, ok := weights[kc.Key]
		if !ok {
			return 0, fmt.Errorf("%w: no weight for metric %q", ErrInvalidConfiguration, kc.Key)
		}
		sum += score * w
		total += w
	}
	if total == 0 || math.IsNaN(total) {
		return 0, fmt.Errorf("%w: weights sum to zero", ErrInvalidConfiguration)
	}
	return Evaluate(sum/total, ts)
}

// SectorAggregation is a resolved sector strategy. Weights and Thresholds
// are used only by weighted_average.
type SectorAggregation struct {
	Method     SectorMethod
	Weights    map[string]float64
	Thresholds Thresholds
}

// Apply aggregates the colors of one sector according to a.
func (a SectorAggregation) Apply(colors []KeyedColor) (Color, error) {
	if a.Method == SectorWeighted {
		return AggregateWeighted(colors, a.Weights, a.Thresholds)
	}
	plain := make([]Color, len(colors))
	for i, kc := range colors {
		plain[i] = kc.Color
	}
	return AggregateSector(plain, a.Method)
}

// SectorPolicy holds the default sector strategy and per-sector overrides.
type SectorPolicy struct {
	Default   SectorAggregation
	Overrides map[string]SectorAggregation
}

// For returns the strategy for sector, falling back to the default.
func (p SectorPolicy) For(sector string) SectorAggregation {
	if o, ok := p.Overrides[sector]; ok {
		return o
	}
	return p.Default
}

// Matrix is a color-by-color decision table: Matrix[row][col] is the color
// that results from combining row with col.
type Matrix map[Color]map[Color]Color

// Lookup returns m[row][col] and whether the entry exists.
func (m Matrix) Lookup(row, col Color) (Color, bool) {
	cols, ok := m[row]
	if !ok {
		return 0, false
	}
	c, ok := cols[col]
	return c, ok && c.Valid()
}

// Complete reports the first missing [row][col] pair, if any, of the full
// 3x3 table.
func (m Matrix) Complete() error {
	for _, row := range AllColors {
		for _, col := range AllColors {
			if _, ok := m.Lookup(row, col); !ok {
				return fmt.Errorf("%w: no entry for [%s][%s]", ErrMalformedMatrix, row, col)
			}
		}
	}
	return nil
}

// FinalAggregation is the strategy for combining sector colors. Dimensions
// and Matrix are used only by the matrix method.
type FinalAggregation struct {
	Method     FinalMethod
	Dimensions []string
	Matrix     Matrix
}

// AggregateFinal combines sector colors into the model color.
//
// worst_color returns the most severe sector color regardless of order.
// matrix folds the sector colors left to right in Dimensions order:
// the first two are looked up in the matrix, the result is combined with
// the third, and so on. A single dimension yields its own color.
// It returns ErrMissingSectorColor if a dimension has no color and
// ErrMalformedMatrix if a required entry is absent or no dimensions are set.
func AggregateFinal(sectorColors map[string]Color, agg FinalAggregation) (Color, error) {
	switch agg.Method {
	case FinalWorst:
		if len(sectorColors) == 0 {
			return 0, ErrEmptyColors
		}
		names := make([]string, 0, len(sectorColors))
		for name := range sectorColors {
			names = append(names, name)
		}
		sort.Strings(names)
		colors := make([]Color, len(names))
		for i, name := range names {
			colors[i] = sectorColors[name]
		}
		return AggregateSector(colors, SectorWorst)
	case FinalMatrix:
		return foldMatrix(sectorColors, agg.Dimensions, agg.Matrix)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, agg.Method)
	}
}

func foldMatrix(sectorColors map[string]Color, dims []string, m Matrix) (Color, error) {
	if len(dims) == 0 {
		return 0, fmt.Errorf("%w: no dimensions", ErrMalformedMatrix)
	}

	colorOf := func(dim string) (Color, error) {
		c, ok := sectorColors[dim]
		if !ok || !c.Valid() {
			return 0, fmt.Errorf("%w: %q", ErrMissingSectorColor, dim)
		}
		return c, nil
	}

	acc, err := colorOf(dims[0])
	if err != nil {
		return 0, err
	}
	for _, dim := range dims[1:] {
		next, err := colorOf(dim)
		if err != nil {
			return 0, err
		}
		out, ok := m.Lookup(acc, next)
		if !ok {
			return 0, fmt.Errorf("%w: no entry for [%s][%s] at dimension %q", ErrMalformedMatrix, acc, next, dim)
		}
		acc = out
	}
	return acc, nil
}
