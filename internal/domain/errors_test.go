package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricError(t *testing.T) {
	tests := []struct {
		name    string
		err     *MetricError
		target  error
		wantMsg string
	}{
		{
			name:    "resolve failure",
			err:     &MetricError{Key: "gini", MetricID: "gini_coefficient", Sector: "discrimination", Op: "resolve", Err: ErrUnknownMetric},
			target:  ErrUnknownMetric,
			wantMsg: `metric "gini" (id=gini_coefficient, sector=discrimination): resolve: unknown metric`,
		},
		{
			name:    "extraction failure",
			err:     &MetricError{Key: "psi", MetricID: "psi_calculator", Sector: "stability", Op: "extract", Err: ErrMissingColorField},
			target:  ErrMissingColorField,
			wantMsg: `metric "psi" (id=psi_calculator, sector=stability): extract: missing color field`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error(), "Error message mismatch")
			assert.ErrorIs(t, tt.err, tt.target, "Should unwrap to underlying error")
		})
	}
}

func TestThresholdError(t *testing.T) {
	rules := Thresholds{
		MustParseRule(Green, ">= 0.4"),
		MustParseRule(Yellow, ">= 0.3"),
	}
	err := &ThresholdError{Value: 0.1, Rules: rules}

	assert.ErrorIs(t, err, ErrNoThresholdMatched)
	assert.Contains(t, err.Error(), "value 0.1")
	assert.Contains(t, err.Error(), "green >= 0.4")
	assert.Contains(t, err.Error(), "yellow >= 0.3")

	wrapped := &MetricError{Key: "ks", Op: "evaluate", Err: err}
	var te *ThresholdError
	require.True(t, errors.As(wrapped, &te), "ThresholdError should be reachable through MetricError")
	assert.Equal(t, 0.1, te.Value)
}

func TestAggregationError(t *testing.T) {
	t.Run("sector level", func(t *testing.T) {
		err := &AggregationError{Level: "sector", Sector: "stability", Method: "majority", Err: ErrEmptyColors}
		assert.Equal(t, `sector aggregation of "stability" (method=majority): no colors to aggregate`, err.Error())
		assert.ErrorIs(t, err, ErrEmptyColors)
	})

	t.Run("final level", func(t *testing.T) {
		err := &AggregationError{Level: "final", Method: "matrix", Err: ErrMalformedMatrix}
		assert.Equal(t, "final aggregation (method=matrix): malformed decision matrix", err.Error())
		assert.ErrorIs(t, err, ErrMalformedMatrix)
	})
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("ModelConfig")
		err.AddError("missing model_id")

		assert.Equal(t, "validation error for ModelConfig: missing model_id", err.Error())
		assert.True(t, err.HasErrors(), "Should have errors")
		assert.Len(t, err.Errors, 1, "Should have one error")
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("ModelConfig")
		err.AddError("invalid metric")
		err.AddErrorf("unknown sector %q", "stability")

		assert.Contains(t, err.Error(), "validation errors for ModelConfig")
		assert.Contains(t, err.Errors[1], `"stability"`)
		assert.Len(t, err.Errors, 2, "Should have two errors")
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("Config")

		assert.False(t, err.HasErrors(), "Should not have errors")
		assert.Empty(t, err.Errors, "Errors slice should be empty")
	})

	t.Run("matches invalid configuration", func(t *testing.T) {
		err := NewValidationError("Config")
		err.AddError("bad")
		wrapped := fmt.Errorf("loading: %w", err)
		assert.ErrorIs(t, wrapped, ErrInvalidConfiguration)
	})
}

func TestBackendErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("%w: risk-engine: %w", ErrBackendError, cause)

	assert.ErrorIs(t, err, ErrBackendError, "Should match backend sentinel")
	assert.ErrorIs(t, err, cause, "Should preserve the downstream cause")
}
