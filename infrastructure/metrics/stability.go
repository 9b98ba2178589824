package metrics

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// Metric ids of the stability metrics.
const (
	PSIID = "psi_calculator"
	CSIID = "csi_calculator"
)

// pctFloor keeps empty bins out of log(0).
const pctFloor = 1e-8

// PSIConfig holds the inputs of psi_calculator.
type PSIConfig struct {
	// ScoreCol holds the current (actual) scores.
	ScoreCol string `yaml:"score_col" validate:"required"`
	// ReferenceCol holds the expected scores. When the dataset has no such
	// column the reference is taken from ReferencePeriod rows instead.
	ReferenceCol    string `yaml:"reference_col"`
	ReferencePeriod string `yaml:"reference_period"`
	PeriodCol       string `yaml:"period_col"`
	Bins            int    `yaml:"n_bins" validate:"min=1,max=100"`
}

// DefaultPSIConfig returns the psi_calculator defaults.
func DefaultPSIConfig() PSIConfig {
	return PSIConfig{
		ScoreCol:     "predicted",
		ReferenceCol: "reference_score",
		PeriodCol:    "period",
		Bins:         10,
	}
}

// PSI computes the Population Stability Index between a reference and a
// current score distribution. Bins are quantiles of the reference
// distribution; the value is the sum of (a-e)*ln(a/e) over bins.
//
// The reference is the reference_col column when present, otherwise the
// score_col rows of reference_period (the remaining rows being current).
// The result holds psi_value and psi_table.
func PSI(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
	cfg := DefaultPSIConfig()
	if err := decodeInputs(in, &cfg); err != nil {
		return nil, err
	}
	expected, actual, err := cfg.distributions(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(expected) == 0 || len(actual) == 0 {
		return domain.MetricResult{
			"psi_value": 0.0,
			"psi_table": domain.Table{Columns: psiColumns},
		}, nil
	}

	table, value := psiBuckets(expected, actual, cfg.Bins)
	return domain.MetricResult{
		"psi_value": round6(value),
		"psi_table": table,
	}, nil
}

// distributions returns the non-NaN expected and actual samples.
func (c PSIConfig) distributions(data *domain.Dataset) (expected, actual []float64, err error) {
	scores, err := data.Float(c.ScoreCol)
	if err != nil {
		return nil, nil, err
	}

	if c.ReferenceCol != "" && data.HasColumn(c.ReferenceCol) {
		ref, err := data.Float(c.ReferenceCol)
		if err != nil {
			return nil, nil, err
		}
		return dropNaN(ref), dropNaN(scores), nil
	}

	if c.ReferencePeriod != "" && data.HasColumn(c.PeriodCol) {
		periods, err := data.Strings(c.PeriodCol)
		if err != nil {
			return nil, nil, err
		}
		for i, p := range periods {
			if math.IsNaN(scores[i]) {
				continue
			}
			if p == c.ReferencePeriod {
				expected = append(expected, scores[i])
			} else {
				actual = append(actual, scores[i])
			}
		}
		return expected, actual, nil
	}

	return nil, nil, fmt.Errorf("%w: need either %q column or %q column with reference_period set",
		ErrNoReference, c.ReferenceCol, c.PeriodCol)
}

var psiColumns = []string{"bin", "expected_pct", "actual_pct", "psi_contribution"}

// psiBuckets bins both samples on the quantile edges of expected and returns
// the per-bin table with the PSI, summed from the rounded contributions.
func psiBuckets(expected, actual []float64, bins int) (domain.Table, float64) {
	edges := quantileEdges(expected, bins)
	expCounts := histogram(expected, edges)
	actCounts := histogram(actual, edges)
	expTotal := max(float64(len(expected)), 1)
	actTotal := max(float64(len(actual)), 1)

	t := domain.Table{Columns: psiColumns}
	var psi float64
	for i := range expCounts {
		e := math.Max(float64(expCounts[i])/expTotal, pctFloor)
		a := math.Max(float64(actCounts[i])/actTotal, pctFloor)
		contribution := round6((a - e) * math.Log(a/e))
		psi += contribution
		t.Rows = append(t.Rows, []any{i + 1, round6(e), round6(a), contribution})
	}
	return t, psi
}

// quantileEdges returns bins+1 edges at evenly spaced quantiles of sample,
// with the outer edges opened to infinity and duplicate edges removed.
func quantileEdges(sample []float64, bins int) []float64 {
	sorted := slices.Clone(sample)
	sort.Float64s(sorted)

	edges := make([]float64, bins+1)
	for i := range edges {
		edges[i] = quantile(sorted, float64(i)/float64(bins))
	}
	edges[0] = math.Inf(-1)
	edges[bins] = math.Inf(1)
	return slices.Compact(edges)
}

// quantile linearly interpolates the q-th quantile of a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// histogram counts values per [edges[i], edges[i+1]) bin, the last bin
// being closed on the right.
func histogram(values, edges []float64) []int {
	counts := make([]int, len(edges)-1)
	last := len(counts) - 1
	for _, v := range values {
		i := sort.Search(len(edges), func(j int) bool { return edges[j] > v }) - 1
		switch {
		case i < 0:
			continue
		case i > last:
			if v == edges[len(edges)-1] {
				counts[last]++
			}
			continue
		}
		counts[i]++
	}
	return counts
}

// CSIConfig holds the inputs of csi_calculator.
type CSIConfig struct {
	// FeatureCols lists the features to compare. When empty every numeric
	// column with a matching reference column is used.
	FeatureCols []string `yaml:"feature_cols" validate:"omitempty,dive,required"`
	// ReferenceSuffix names the reference column of a feature.
	ReferenceSuffix string `yaml:"reference_col_suffix" validate:"required"`
	Bins            int    `yaml:"n_bins" validate:"min=1,max=100"`
}

// DefaultCSIConfig returns the csi_calculator defaults.
func DefaultCSIConfig() CSIConfig {
	return CSIConfig{ReferenceSuffix: "_ref", Bins: 10}
}

// CSI computes the Characteristic Stability Index: the PSI of each feature
// against its reference column, reported as the maximum over features.
//
// The result holds csi_value, csi_table (feature, psi) and feature_details
// mapping each feature to its PSI bin table.
func CSI(ctx context.Context, data *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
	cfg := DefaultCSIConfig()
	if err := decodeInputs(in, &cfg); err != nil {
		return nil, err
	}

	features := cfg.FeatureCols
	if len(features) == 0 {
		for _, col := range data.Columns() {
			if _, err := data.Float(col); err != nil {
				continue
			}
			if _, err := data.Float(col + cfg.ReferenceSuffix); err == nil {
				features = append(features, col)
			}
		}
	}

	table := domain.Table{Columns: []string{"feature", "psi"}}
	details := make(map[string]domain.Table, len(features))
	var csi float64
	for _, col := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, err := data.Float(col + cfg.ReferenceSuffix)
		if err != nil {
			continue
		}
		cur, err := data.Float(col)
		if err != nil {
			return nil, err
		}
		expected, actual := dropNaN(ref), dropNaN(cur)
		if len(expected) == 0 || len(actual) == 0 {
			continue
		}

		bins, psi := psiBuckets(expected, actual, cfg.Bins)
		psi = round6(psi)
		table.Rows = append(table.Rows, []any{col, psi})
		details[col] = bins
		if len(table.Rows) == 1 || psi > csi {
			csi = psi
		}
	}

	return domain.MetricResult{
		"csi_value":       round6(csi),
		"csi_table":       table,
		"feature_details": details,
	}, nil
}

// RegisterStability registers psi_calculator and csi_calculator.
func RegisterStability(r ports.Registrar) error {
	if err := r.Register(PSIID, PSI); err != nil {
		return err
	}
	return r.Register(CSIID, CSI)
}
