// Package metrics provides the built-in metric functions for model health
// reporting: rank ordering (Gini, KS), accuracy (AUC, precision, recall) and
// population stability (PSI, CSI).
//
// Every function has the ports.MetricFunc signature and is registered under
// a fixed id by RegisterBuiltins. Inputs are decoded from the metric's
// configured inputs onto per-metric defaults and validated before any
// computation runs. Scalars are rounded to six decimal places.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-prism/internal/domain"
)

// Errors returned by the built-in metrics.
var (
	// ErrInsufficientData is returned when a dataset has too few rows for a metric.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidInputs is returned when metric inputs fail to decode or validate.
	ErrInvalidInputs = errors.New("invalid metric inputs")

	// ErrNoReference is returned when a stability metric cannot locate its
	// reference distribution.
	ErrNoReference = errors.New("cannot determine reference distribution")
)

// Package-level validator instance for input validation.
var validate = validator.New()

// decodeInputs overlays in onto cfg, which must already hold the metric's
// defaults, and validates the result. Unknown inputs are ignored so a model
// can share one inputs block between related metrics.
func decodeInputs(in domain.Inputs, cfg any) error {
	if len(in) > 0 {
		data, err := yaml.Marshal(map[string]any(in))
		if err != nil {
			return fmt.Errorf("%w: marshal: %v", ErrInvalidInputs, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInputs, err)
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInputs, err)
	}
	return nil
}

// columns is the actual/predicted column pair shared by the classification metrics.
type columns struct {
	ActualCol    string `yaml:"actual_col" validate:"required"`
	PredictedCol string `yaml:"predicted_col" validate:"required"`
}

func defaultColumns() columns {
	return columns{ActualCol: "actual", PredictedCol: "predicted"}
}

// load returns the actual and predicted columns of data.
func (c columns) load(data *domain.Dataset) (actual, predicted []float64, err error) {
	if actual, err = data.Float(c.ActualCol); err != nil {
		return nil, nil, err
	}
	if predicted, err = data.Float(c.PredictedCol); err != nil {
		return nil, nil, err
	}
	return actual, predicted, nil
}

// round6 rounds v to six decimal places.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// rankDescending returns row indices ordered by score, highest first.
// Equal scores keep their dataset order.
func rankDescending(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	return idx
}

// decile returns the 1-based decile of position pos among n ranked rows.
// Positions are split on equally spaced edges over [0, n-1], each bin
// closed on the right and the first bin closed on both sides.
func decile(pos, n int) int {
	if n <= 1 || pos == 0 {
		return 1
	}
	d := (10*pos + n - 2) / (n - 1)
	return min(max(d, 1), 10)
}

// trapezoid integrates y over x with the trapezoidal rule.
func trapezoid(y, x []float64) float64 {
	var area float64
	for i := 1; i < len(x) && i < len(y); i++ {
		area += (x[i] - x[i-1]) * (y[i] + y[i-1]) / 2
	}
	return area
}

// dropNaN returns the non-NaN values of v.
func dropNaN(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, f := range v {
		if !math.IsNaN(f) {
			out = append(out, f)
		}
	}
	return out
}

// confusion holds binary classification counts.
type confusion struct {
	TP, TN, FP, FN int
}

// confusionAt classifies predicted >= threshold as positive.
func confusionAt(actual, predicted []float64, threshold float64) confusion {
	var cm confusion
	for i := range actual {
		pos := predicted[i] >= threshold
		switch {
		case pos && actual[i] == 1:
			cm.TP++
		case !pos && actual[i] == 0:
			cm.TN++
		case pos && actual[i] == 0:
			cm.FP++
		case !pos && actual[i] == 1:
			cm.FN++
		}
	}
	return cm
}

func (cm confusion) precision() float64 { return float64(cm.TP) / float64(max(cm.TP+cm.FP, 1)) }
func (cm confusion) recall() float64    { return float64(cm.TP) / float64(max(cm.TP+cm.FN, 1)) }

// asMap returns the counts keyed the way reports print them.
func (cm confusion) asMap() map[string]int {
	return map[string]int{"tp": cm.TP, "tn": cm.TN, "fp": cm.FP, "fn": cm.FN}
}
