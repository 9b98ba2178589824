package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors that can occur while scoring a model.
var (
	// ErrInvalidColor indicates that a color name or value is not one of green, yellow or red.
	ErrInvalidColor = errors.New("invalid color")

	// ErrInvalidThreshold indicates that a threshold expression does not match the rule grammar.
	ErrInvalidThreshold = errors.New("invalid threshold expression")

	// ErrNoThresholdMatched indicates that a metric value satisfied none of its threshold rules.
	ErrNoThresholdMatched = errors.New("no threshold matched")

	// ErrUnknownMetric indicates that a metric id is not present in the registry.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrMetricFailed indicates that a local metric function returned an error.
	ErrMetricFailed = errors.New("metric computation failed")

	// ErrBackendUnavailable indicates that a metric names a backend that is not configured.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendError indicates that a configured backend failed to compute a metric.
	ErrBackendError = errors.New("backend error")

	// ErrMissingColorField indicates that a metric result lacks a numeric color field.
	ErrMissingColorField = errors.New("missing color field")

	// ErrEmptyColors indicates that a sector aggregation received no colors.
	ErrEmptyColors = errors.New("no colors to aggregate")

	// ErrUnknownMethod indicates that an aggregation method name is not supported.
	ErrUnknownMethod = errors.New("unknown aggregation method")

	// ErrMissingSectorColor indicates that a final aggregation dimension has no sector color.
	ErrMissingSectorColor = errors.New("missing sector color")

	// ErrMalformedMatrix indicates that a decision matrix is incomplete or unusable.
	ErrMalformedMatrix = errors.New("malformed decision matrix")

	// ErrNotComputed indicates that report data was read before computation finished.
	ErrNotComputed = errors.New("report not computed")

	// ErrUnknownMetricKey indicates that a report has no metric with the requested key.
	ErrUnknownMetricKey = errors.New("unknown metric key")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// MetricError describes a failure while computing or coloring a single metric.
// It identifies the metric by key, registry id and sector so the failing
// configuration entry can be located quickly.
type MetricError struct {
	// Key is the metric key from the model configuration.
	Key string

	// MetricID is the registry identifier of the metric function.
	MetricID string

	// Sector is the sector the metric belongs to.
	Sector string

	// Op names the phase that failed: resolve, extract or evaluate.
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for MetricError.
func (e *MetricError) Error() string {
	return fmt.Sprintf("metric %q (id=%s, sector=%s): %s: %v", e.Key, e.MetricID, e.Sector, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricError) Unwrap() error { return e.Err }

// ThresholdError reports a value that no threshold rule matched.
type ThresholdError struct {
	// Value is the scalar that was evaluated.
	Value float64

	// Rules are the rules that were tried, in declared order.
	Rules Thresholds
}

// Error implements the error interface for ThresholdError.
func (e *ThresholdError) Error() string {
	exprs := make([]string, 0, len(e.Rules))
	for _, r := range e.Rules {
		exprs = append(exprs, r.String())
	}
	return fmt.Sprintf("%v: value %g against [%s]", ErrNoThresholdMatched, e.Value, strings.Join(exprs, ", "))
}

// Unwrap returns ErrNoThresholdMatched.
func (e *ThresholdError) Unwrap() error { return ErrNoThresholdMatched }

// AggregationError describes a failure aggregating sector or final colors.
type AggregationError struct {
	// Level is either "sector" or "final".
	Level string

	// Sector is set for sector-level failures.
	Sector string

	// Method is the aggregation method in use.
	Method string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for AggregationError.
func (e *AggregationError) Error() string {
	if e.Sector != "" {
		return fmt.Sprintf("%s aggregation of %q (method=%s): %v", e.Level, e.Sector, e.Method, e.Err)
	}
	return fmt.Sprintf("%s aggregation (method=%s): %v", e.Level, e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *AggregationError) Unwrap() error { return e.Err }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// Unwrap lets callers match validation failures with ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error { return ErrInvalidConfiguration }

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddErrorf adds a formatted error message to the validation error.
func (e *ValidationError) AddErrorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
