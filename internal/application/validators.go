package application

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// registerCustomValidators registers domain-specific validation functions
// with the validator instance.
// registerCustomValidators returns an error if any validator registration fails.
func registerCustomValidators(v *validator.Validate) error {
	validators := map[string]validator.Func{
		"semver":     validateSemver,
		"identifier": validateIdentifier,
		"ragcolor":   validateRAGColor,
		"threshold":  validateThreshold,
	}
	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateIdentifier accepts ids made of letters, digits, '_', '-' and '.'
// that do not start with punctuation. Model ids become file names, so path
// separators are rejected.
func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}

// validateRAGColor accepts green, yellow (or amber) and red.
func validateRAGColor(fl validator.FieldLevel) bool {
	_, err := domain.ParseColor(fl.Field().String())
	return err == nil
}

// validateThreshold accepts comparison expressions such as ">= 0.4".
func validateThreshold(fl validator.FieldLevel) bool {
	return domain.ValidThreshold(fl.Field().String())
}

// validateSemantics performs rules that cannot be expressed through struct
// tags: sector references, weighted_average weights, matrix completeness
// and, when a metric lookup is available, that local metric ids exist.
// All problems are collected into a single *domain.ValidationError.
func validateSemantics(cfg *ModelConfig, lookup ports.MetricLookup) error {
	verr := domain.NewValidationError(fmt.Sprintf("model %q", cfg.ModelID))

	sectors := make(map[string][]string)
	for _, m := range cfg.Metrics {
		sectors[m.Sector] = append(sectors[m.Sector], m.Key)

		if lookup != nil {
			if _, ok := domain.ParseSource(m.Source).(domain.LocalSource); ok {
				if _, err := lookup.Lookup(m.MetricID); err != nil {
					verr.AddErrorf("metric %q: %v", m.Key, err)
				}
			}
		}
	}

	checkSector := func(name string, sc SectorConfig, members []string) {
		if sc.Method != string(domain.SectorWeighted) {
			if len(sc.Weights) > 0 || len(sc.Thresholds) > 0 {
				verr.AddErrorf("sector %q: weights and thresholds require weighted_average", name)
			}
			return
		}
		for _, key := range members {
			if _, ok := sc.Weights[key]; !ok {
				verr.AddErrorf("sector %q: missing weight for metric %q", name, key)
			}
		}
		var total float64
		for key, w := range sc.Weights {
			total += w
			if !slices.Contains(members, key) {
				verr.AddErrorf("sector %q: weight for unknown metric %q", name, key)
			}
		}
		if total == 0 {
			verr.AddErrorf("sector %q: weights sum to zero", name)
		}
	}

	def := cfg.Aggregation.Sector
	if def.Method == string(domain.SectorWeighted) {
		// Default weights apply to whichever sectors are not overridden.
		owner := make(map[string]string, len(cfg.Metrics))
		for _, m := range cfg.Metrics {
			owner[m.Key] = m.Sector
		}
		for _, key := range sortedKeys(def.Weights) {
			if _, ok := owner[key]; !ok {
				verr.AddErrorf("sector aggregation: weight for unknown metric %q", key)
			}
		}
		for _, name := range sortedKeys(sectors) {
			if _, overridden := def.Overrides[name]; overridden {
				continue
			}
			sub := make(map[string]float64)
			for key, w := range def.Weights {
				if owner[key] == name {
					sub[key] = w
				}
			}
			checkSector(name, SectorConfig{Method: def.Method, Weights: sub, Thresholds: def.Thresholds}, sectors[name])
		}
	} else if len(def.Weights) > 0 || len(def.Thresholds) > 0 {
		verr.AddError("sector aggregation: weights and thresholds require weighted_average")
	}

	for _, name := range sortedKeys(def.Overrides) {
		o := def.Overrides[name]
		members, ok := sectors[name]
		if !ok {
			verr.AddErrorf("sector override %q: no metric uses this sector", name)
			continue
		}
		if len(o.Overrides) > 0 {
			verr.AddErrorf("sector override %q: overrides cannot be nested", name)
		}
		checkSector(name, o, members)
	}

	final := cfg.Aggregation.Final
	switch final.Method {
	case string(domain.FinalMatrix):
		if len(final.Dimensions) == 0 {
			verr.AddError("final aggregation: matrix requires at least one dimension")
		}
		for _, dim := range final.Dimensions {
			if _, ok := sectors[dim]; !ok {
				verr.AddErrorf("final aggregation: dimension %q is not a configured sector", dim)
			}
		}
		if len(final.Dimensions) > 1 {
			validateMatrix(final.Matrix, verr)
		}
	default:
		if len(final.Dimensions) > 0 || len(final.Matrix) > 0 {
			verr.AddError("final aggregation: dimensions and matrix require method matrix")
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// validateMatrix requires every [row][col] pair of the 3x3 table exactly once.
// Aliases such as amber count as the color they name.
func validateMatrix(matrix map[string]map[string]string, verr *domain.ValidationError) {
	present := make(map[[2]domain.Color]string)
	rows := make(map[domain.Color]string)
	for _, rowName := range sortedKeys(matrix) {
		row, err := domain.ParseColor(rowName)
		if err != nil {
			verr.AddErrorf("matrix: invalid row color %q", rowName)
			continue
		}
		if prev, ok := rows[row]; ok {
			verr.AddErrorf("matrix: rows %q and %q both name %s", prev, rowName, row)
		} else {
			rows[row] = rowName
		}

		cols := matrix[rowName]
		for _, colName := range sortedKeys(cols) {
			col, err := domain.ParseColor(colName)
			if err != nil {
				verr.AddErrorf("matrix[%s]: invalid column color %q", rowName, colName)
				continue
			}
			if _, err := domain.ParseColor(cols[colName]); err != nil {
				verr.AddErrorf("matrix[%s][%s]: invalid result color %q", rowName, colName, cols[colName])
				continue
			}
			key := [2]domain.Color{row, col}
			if prev, ok := present[key]; ok {
				verr.AddErrorf("matrix[%s][%s]: duplicates entry %s", rowName, colName, prev)
				continue
			}
			present[key] = fmt.Sprintf("[%s][%s]", rowName, colName)
		}
	}
	for _, row := range domain.AllColors {
		for _, col := range domain.AllColors {
			if _, ok := present[[2]domain.Color{row, col}]; !ok {
				verr.AddErrorf("matrix: missing entry [%s][%s]", row, col)
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
