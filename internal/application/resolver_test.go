package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
	"github.com/ahrav/go-prism/internal/testutils"
)

func TestResolverLocal(t *testing.T) {
	reg := NewMetricRegistry()
	var gotInputs domain.Inputs
	var gotData *domain.Dataset
	require.NoError(t, reg.Register("gini_coefficient", func(_ context.Context, d *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
		gotData, gotInputs = d, in
		return domain.MetricResult{"gini": 0.42}, nil
	}))
	require.NoError(t, reg.Register("empty", func(context.Context, *domain.Dataset, domain.Inputs) (domain.MetricResult, error) {
		return nil, nil
	}))
	require.NoError(t, reg.Register("broken", testutils.FailingMetric(errors.New("column missing"))))

	r := NewResolver(reg)
	data := domain.NewDataset(0)

	t.Run("passes data and inputs", func(t *testing.T) {
		spec := domain.MetricSpec{Key: "gini", MetricID: "gini_coefficient", Source: domain.LocalSource{}, Inputs: domain.Inputs{"segment": "retail"}}
		res, err := r.Resolve(context.Background(), spec, data, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.42, res["gini"])
		assert.Same(t, data, gotData)
		assert.Equal(t, "retail", gotInputs["segment"])
	})

	t.Run("metric cannot mutate configured inputs", func(t *testing.T) {
		require.NoError(t, reg.Register("mutating", func(_ context.Context, _ *domain.Dataset, in domain.Inputs) (domain.MetricResult, error) {
			in["segment"] = "changed"
			return domain.MetricResult{"v": 1.0}, nil
		}))
		spec := domain.MetricSpec{MetricID: "mutating", Inputs: domain.Inputs{"segment": "retail"}}
		_, err := r.Resolve(context.Background(), spec, data, nil)
		require.NoError(t, err)
		assert.Equal(t, "retail", spec.Inputs["segment"])
	})

	t.Run("nil source means local", func(t *testing.T) {
		res, err := r.Resolve(context.Background(), domain.MetricSpec{MetricID: "gini_coefficient"}, data, nil)
		require.NoError(t, err)
		assert.Contains(t, res, "gini")
	})

	t.Run("nil result becomes empty", func(t *testing.T) {
		res, err := r.Resolve(context.Background(), domain.MetricSpec{MetricID: "empty"}, data, nil)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
	})

	t.Run("unknown metric", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), domain.MetricSpec{MetricID: "nope", Source: domain.LocalSource{}}, data, nil)
		assert.ErrorIs(t, err, domain.ErrUnknownMetric)
	})

	t.Run("metric failure", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), domain.MetricSpec{MetricID: "broken"}, data, nil)
		assert.ErrorIs(t, err, domain.ErrMetricFailed)
		assert.Contains(t, err.Error(), "column missing")
	})
}

func TestResolverBackend(t *testing.T) {
	backend := testutils.NewMockBackend("risk-engine").
		SetResult("psi", domain.MetricResult{"psi": 0.08}).
		SetError("down", ports.ErrServiceUnavailable)

	reg := NewMetricRegistry()
	require.NoError(t, reg.Register("psi", testutils.ConstMetric("psi", 99)))
	r := NewResolver(reg, backend)
	assert.Equal(t, []string{"risk-engine"}, r.Backends())

	t.Run("dispatches to named backend", func(t *testing.T) {
		bctx := map[string]string{"model_id": "credit_v1"}
		spec := domain.MetricSpec{MetricID: "psi", Source: domain.BackendSource{Name: "risk-engine"}, Inputs: domain.Inputs{"bins": 10}}
		res, err := r.Resolve(context.Background(), spec, nil, bctx)
		require.NoError(t, err)
		assert.Equal(t, 0.08, res["psi"], "backend result should be used, not the local function")

		reqs := backend.Requests()
		require.NotEmpty(t, reqs)
		last := reqs[len(reqs)-1]
		assert.Equal(t, "psi", last.MetricID)
		assert.Equal(t, "credit_v1", last.Context["model_id"])
		assert.Equal(t, 10, last.Inputs["bins"])

		last.Inputs["bins"] = 20
		assert.Equal(t, 10, spec.Inputs["bins"], "backend requests carry a copy of the inputs")
	})

	t.Run("unknown backend never falls back to local", func(t *testing.T) {
		spec := domain.MetricSpec{MetricID: "psi", Source: domain.BackendSource{Name: "warehouse"}}
		_, err := r.Resolve(context.Background(), spec, nil, nil)
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	})

	t.Run("backend failure keeps cause", func(t *testing.T) {
		spec := domain.MetricSpec{MetricID: "down", Source: domain.BackendSource{Name: "risk-engine"}}
		_, err := r.Resolve(context.Background(), spec, nil, nil)
		assert.ErrorIs(t, err, domain.ErrBackendError)
		assert.ErrorIs(t, err, ports.ErrServiceUnavailable)
	})
}

func TestResolverCancellation(t *testing.T) {
	reg := NewMetricRegistry()
	require.NoError(t, reg.Register("slow", func(ctx context.Context, _ *domain.Dataset, _ domain.Inputs) (domain.MetricResult, error) {
		return nil, ctx.Err()
	}))
	r := NewResolver(reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, domain.MetricSpec{MetricID: "slow"}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrMetricFailed)
}
