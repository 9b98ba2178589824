package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset(t *testing.T) *Dataset {
	t.Helper()
	d := NewDataset(4)
	require.NoError(t, d.AddFloat("actual", []float64{1, 0, 1, 0}))
	require.NoError(t, d.AddFloat("predicted", []float64{0.9, 0.2, 0.7, 0.4}))
	require.NoError(t, d.AddString("segment", []string{"retail", "sme", "retail", "sme"}))
	return d
}

func TestDatasetColumns(t *testing.T) {
	d := sampleDataset(t)

	assert.Equal(t, 4, d.Len())
	assert.Equal(t, []string{"actual", "predicted", "segment"}, d.Columns())
	assert.True(t, d.HasColumn("segment"))
	assert.False(t, d.HasColumn("period"))

	col, err := d.Float("predicted")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.2, 0.7, 0.4}, col)

	_, err = d.Float("segment")
	assert.ErrorIs(t, err, ErrUnknownColumn, "string column is not numeric")

	_, err = d.Strings("actual")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestDatasetAddErrors(t *testing.T) {
	d := NewDataset(2)
	assert.Error(t, d.AddFloat("x", []float64{1}), "length mismatch")
	require.NoError(t, d.AddFloat("x", []float64{1, 2}))
	assert.Error(t, d.AddString("x", []string{"a", "b"}), "duplicate name")
	assert.Error(t, d.AddFloat("", []float64{1, 2}), "empty name")
}

func TestDatasetFilter(t *testing.T) {
	d := sampleDataset(t)

	retail, err := d.FilterEqual("segment", "retail")
	require.NoError(t, err)
	assert.Equal(t, 2, retail.Len())

	pred, err := retail.Float("predicted")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.7}, pred)
	assert.Equal(t, d.Columns(), retail.Columns())

	_, err = d.FilterEqual("region", "eu")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	segments, err := d.Distinct("segment")
	require.NoError(t, err)
	assert.Equal(t, []string{"retail", "sme"}, segments)
}

func TestNilDataset(t *testing.T) {
	var d *Dataset
	assert.Equal(t, 0, d.Len())
	assert.False(t, d.HasColumn("x"))
	_, err := d.Float("x")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}
