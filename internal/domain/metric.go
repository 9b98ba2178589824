package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Source says where a metric is computed. It is either LocalSource or
// BackendSource; no other implementations exist.
type Source interface {
	fmt.Stringer
	isSource()
}

// LocalSource computes a metric with a function from the in-process registry.
type LocalSource struct{}

func (LocalSource) isSource() {}

// String returns "local".
func (LocalSource) String() string { return "local" }

// BackendSource computes a metric on a named external backend.
type BackendSource struct {
	Name string
}

func (BackendSource) isSource() {}

// String returns the backend name.
func (b BackendSource) String() string { return b.Name }

// ParseSource maps a configuration source tag to a Source. An empty tag or
// "local" selects the registry, anything else names a backend.
func ParseSource(tag string) Source {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, "local") {
		return LocalSource{}
	}
	return BackendSource{Name: tag}
}

// Inputs are the named extra arguments passed to a metric function.
type Inputs map[string]any

// Text returns the string input named key, or def when it is absent.
func (in Inputs) Text(key, def string) string {
	v, ok := in[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Float returns the numeric input named key, or def when it is absent.
func (in Inputs) Float(key string, def float64) (float64, error) {
	v, ok := in[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		if s, isStr := v.(string); isStr {
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return parsed, nil
			}
		}
		return 0, fmt.Errorf("input %q: expected number, got %T", key, v)
	}
	return f, nil
}

// Int returns the integer input named key, or def when it is absent.
func (in Inputs) Int(key string, def int) (int, error) {
	f, err := in.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("input %q: expected integer, got %v", key, f)
	}
	return int(f), nil
}

// Strings returns the list input named key. A single string is returned as
// a one-element list.
func (in Inputs) Strings(key string) ([]string, error) {
	v, ok := in[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("input %q: expected list of strings, found %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("input %q: expected list of strings, got %T", key, v)
	}
}

// MetricSpec describes one configured metric of a model.
type MetricSpec struct {
	// Key identifies the metric within its model.
	Key string
	// Sector groups metrics for sector aggregation.
	Sector string
	// MetricID is the registry or backend identifier of the computation.
	MetricID string
	// Source selects local or backend computation.
	Source Source
	// Inputs are passed through to the metric function.
	Inputs Inputs
	// ColorField names the scalar in the result used for RAG evaluation.
	ColorField string
	// Thresholds are the ordered color rules.
	Thresholds Thresholds
}

// MetricResult is the named output of a metric computation. Besides the
// color scalar it may hold auxiliary payloads such as a Table or Series.
type MetricResult map[string]any

// Scalar returns field as a float64. It returns ErrMissingColorField when
// the field is absent or not numeric.
func (r MetricResult) Scalar(field string) (float64, error) {
	v, ok := r[field]
	if !ok {
		return 0, fmt.Errorf("%w: %q not in result", ErrMissingColorField, field)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %q is %T, not a number", ErrMissingColorField, field, v)
	}
	return f, nil
}

// Fields returns the field names of the result.
func (r MetricResult) Fields() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Table is a small tabular payload, e.g. a decile summary.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Series is an ordered set of points, e.g. a Lorenz or ROC curve.
type Series struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}
