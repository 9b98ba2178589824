package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
	"github.com/ahrav/go-prism/internal/testutils"
)

// recordingObserver implements ports.ComputeObserver for testing.
type recordingObserver struct {
	mu      sync.Mutex
	started int
	colored []string
	ended   []error
	final   domain.Color
}

var _ ports.ComputeObserver = (*recordingObserver)(nil)

func (o *recordingObserver) OnComputeStart(context.Context, string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) OnMetricColored(_ context.Context, _ string, e domain.MetricEntry, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.colored = append(o.colored, e.Spec.Key)
}

func (o *recordingObserver) OnComputeEnd(_ context.Context, _ string, final domain.Color, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, err)
	o.final = final
}

// twoMetricModel is the reference scenario: rank_ordering in
// discriminatory_power and psi in stability.
func twoMetricModel() domain.ModelSpec {
	return domain.ModelSpec{
		ID:   "credit_v1",
		Name: "Credit Risk",
		Metrics: []domain.MetricSpec{
			{
				Key:        "rank_ordering",
				Sector:     "discriminatory_power",
				MetricID:   "rank_ordering",
				Source:     domain.LocalSource{},
				ColorField: "value",
				Thresholds: testutils.Rules(domain.Green, ">=0.4", domain.Yellow, ">=0.3", domain.Red, "<0.3"),
			},
			{
				Key:        "psi",
				Sector:     "stability",
				MetricID:   "psi",
				Source:     domain.LocalSource{},
				ColorField: "psi",
				Thresholds: testutils.Rules(domain.Green, "<0.1", domain.Yellow, "<0.25", domain.Red, ">=0.25"),
			},
		},
		Sectors: domain.SectorPolicy{Default: domain.SectorAggregation{Method: domain.SectorWorst}},
		Final:   domain.FinalAggregation{Method: domain.FinalWorst},
	}
}

func newTestRegistry(t *testing.T, values map[string]float64) *MetricRegistry {
	t.Helper()
	reg := NewMetricRegistry()
	require.NoError(t, reg.Register("rank_ordering", testutils.ConstMetric("value", values["rank_ordering"])))
	require.NoError(t, reg.Register("psi", testutils.ConstMetric("psi", values["psi"])))
	return reg
}

func TestReportEndToEndWorstColor(t *testing.T) {
	reg := newTestRegistry(t, map[string]float64{"rank_ordering": 0.45, "psi": 0.04})
	obs := &recordingObserver{}
	report := NewReport(twoMetricModel(), NewResolver(reg), WithObserver(obs))

	require.NoError(t, report.ComputeAll(context.Background(), nil, nil))
	assert.Equal(t, StateReady, report.State())

	for _, key := range []string{"rank_ordering", "psi"} {
		c, err := report.MetricColor(key)
		require.NoError(t, err)
		assert.Equal(t, domain.Green, c, "metric %s", key)
	}

	sectors, err := report.SectorColors()
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Color{"discriminatory_power": domain.Green, "stability": domain.Green}, sectors)

	final, err := report.FinalColor()
	require.NoError(t, err)
	assert.Equal(t, domain.Green, final)

	assert.Equal(t, 1, obs.started)
	assert.Equal(t, []string{"rank_ordering", "psi"}, obs.colored, "metrics should be computed in configuration order")
	assert.Equal(t, []error{nil}, obs.ended)
	assert.Equal(t, domain.Green, obs.final)
}

func TestReportEndToEndMatrix(t *testing.T) {
	reg := newTestRegistry(t, map[string]float64{"rank_ordering": 0.35, "psi": 0.3})
	model := twoMetricModel()
	model.Final = domain.FinalAggregation{
		Method:     domain.FinalMatrix,
		Dimensions: []string{"discriminatory_power", "stability"},
		Matrix:     domain.Matrix{domain.Yellow: {domain.Red: domain.Red}},
	}

	report := NewReport(model, NewResolver(reg))
	require.NoError(t, report.ComputeAll(context.Background(), nil, nil))

	sectors, err := report.SectorColors()
	require.NoError(t, err)
	assert.Equal(t, domain.Yellow, sectors["discriminatory_power"])
	assert.Equal(t, domain.Red, sectors["stability"])

	final, err := report.FinalColor()
	require.NoError(t, err)
	assert.Equal(t, domain.Red, final)
}

func TestReportAccessorsBeforeCompute(t *testing.T) {
	report := NewReport(twoMetricModel(), NewResolver(NewMetricRegistry()))

	accessors := map[string]func() error{
		"Metric":       func() error { _, err := report.Metric("psi"); return err },
		"MetricValue":  func() error { _, err := report.MetricValue("psi", ""); return err },
		"MetricColor":  func() error { _, err := report.MetricColor("psi"); return err },
		"SectorColors": func() error { _, err := report.SectorColors(); return err },
		"FinalColor":   func() error { _, err := report.FinalColor(); return err },
		"Cache":        func() error { _, err := report.Cache(); return err },
		"Scorecard":    func() error { _, err := report.Scorecard(); return err },
	}

	for name, call := range accessors {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), domain.ErrNotComputed)
		})
	}
}

func TestReportComputeAllIdempotent(t *testing.T) {
	rank := testutils.NewCountingMetric(testutils.ConstMetric("value", 0.45))
	psi := testutils.NewCountingMetric(testutils.ConstMetric("psi", 0.04))
	reg := NewMetricRegistry()
	require.NoError(t, reg.Register("rank_ordering", rank.Func()))
	require.NoError(t, reg.Register("psi", psi.Func()))

	report := NewReport(twoMetricModel(), NewResolver(reg))
	require.NoError(t, report.ComputeAll(context.Background(), nil, nil))
	first, err := report.Cache()
	require.NoError(t, err)

	require.NoError(t, report.ComputeAll(context.Background(), nil, nil), "second call on a ready report is a no-op")
	second, err := report.Cache()
	require.NoError(t, err)

	assert.Same(t, first, second, "cache must not be rebuilt")
	assert.Equal(t, 1, rank.Calls(), "each metric executes exactly once")
	assert.Equal(t, 1, psi.Calls(), "each metric executes exactly once")
}

func TestReportFailureResetsState(t *testing.T) {
	reg := newTestRegistry(t, map[string]float64{"rank_ordering": 0.45, "psi": 0.04})
	model := twoMetricModel()
	model.Metrics[1].ColorField = "missing"

	report := NewReport(model, NewResolver(reg))
	err := report.ComputeAll(context.Background(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColorField)

	var me *domain.MetricError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "psi", me.Key)
	assert.Equal(t, "stability", me.Sector)
	assert.Equal(t, "extract", me.Op)

	assert.Equal(t, StateUninitialized, report.State())
	assert.Equal(t, err, report.LastError())

	_, err = report.MetricColor("rank_ordering")
	assert.ErrorIs(t, err, domain.ErrNotComputed, "partial results must not be exposed")
}

func TestReportErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ModelSpec)
		values map[string]float64
		target error
	}{
		{
			name:   "unknown metric",
			mutate: func(m *domain.ModelSpec) { m.Metrics[0].MetricID = "rank_ordring" },
			target: domain.ErrUnknownMetric,
		},
		{
			name:   "backend unavailable",
			mutate: func(m *domain.ModelSpec) { m.Metrics[0].Source = domain.BackendSource{Name: "warehouse"} },
			target: domain.ErrBackendUnavailable,
		},
		{
			name:   "no threshold matched",
			mutate: func(m *domain.ModelSpec) { m.Metrics[0].Thresholds = testutils.Rules(domain.Green, ">0.4", domain.Yellow, "<0.3") },
			values: map[string]float64{"rank_ordering": 0.35},
			target: domain.ErrNoThresholdMatched,
		},
		{
			name: "missing sector color",
			mutate: func(m *domain.ModelSpec) {
				m.Final = domain.FinalAggregation{Method: domain.FinalMatrix, Dimensions: []string{"stability", "governance"}, Matrix: domain.Matrix{}}
			},
			target: domain.ErrMissingSectorColor,
		},
		{
			name: "malformed matrix",
			mutate: func(m *domain.ModelSpec) {
				m.Final = domain.FinalAggregation{Method: domain.FinalMatrix, Dimensions: []string{"discriminatory_power", "stability"}, Matrix: domain.Matrix{}}
			},
			target: domain.ErrMalformedMatrix,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := map[string]float64{"rank_ordering": 0.45, "psi": 0.04}
			for k, v := range tt.values {
				values[k] = v
			}
			model := twoMetricModel()
			tt.mutate(&model)

			report := NewReport(model, NewResolver(newTestRegistry(t, values)))
			err := report.ComputeAll(context.Background(), nil, nil)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, StateUninitialized, report.State())
		})
	}
}

func TestReportRetryAfterFailure(t *testing.T) {
	backend := testutils.NewMockBackend("risk-engine").SetError("psi", ports.ErrServiceUnavailable)
	reg := newTestRegistry(t, map[string]float64{"rank_ordering": 0.45})
	model := twoMetricModel()
	model.Metrics[1].Source = domain.BackendSource{Name: "risk-engine"}

	report := NewReport(model, NewResolver(reg, backend))
	err := report.ComputeAll(context.Background(), nil, map[string]string{"period": "2024-Q4"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendError)
	assert.ErrorIs(t, err, ports.ErrServiceUnavailable)

	backend.ClearError("psi")
	backend.SetResult("psi", domain.MetricResult{"psi": 0.3})

	require.NoError(t, report.ComputeAll(context.Background(), nil, nil))
	c, err := report.MetricColor("psi")
	require.NoError(t, err)
	assert.Equal(t, domain.Red, c)
	assert.Nil(t, report.LastError())
}

func TestReportContextCancelled(t *testing.T) {
	reg := newTestRegistry(t, map[string]float64{"rank_ordering": 0.45, "psi": 0.04})
	report := NewReport(twoMetricModel(), NewResolver(reg))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := report.ComputeAll(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateUninitialized, report.State())
}

func TestReportReadAccessors(t *testing.T) {
	reg := NewMetricRegistry()
	require.NoError(t, reg.Register("rank_ordering", func(context.Context, *domain.Dataset, domain.Inputs) (domain.MetricResult, error) {
		return domain.MetricResult{"value": 0.45, "deciles": domain.Table{Columns: []string{"decile"}}}, nil
	}))
	require.NoError(t, reg.Register("psi", testutils.ConstMetric("psi", 0.12)))

	report := NewReport(twoMetricModel(), NewResolver(reg), WithReportID("render-1"))
	assert.Equal(t, "render-1", report.ID())
	require.NoError(t, report.ComputeAll(context.Background(), nil, nil))

	v, err := report.MetricValue("rank_ordering", "")
	require.NoError(t, err)
	assert.Equal(t, 0.45, v, "empty field selects the color field")

	tbl, err := report.MetricValue("rank_ordering", "deciles")
	require.NoError(t, err)
	assert.IsType(t, domain.Table{}, tbl)

	_, err = report.MetricValue("rank_ordering", "nope")
	assert.ErrorIs(t, err, domain.ErrMissingColorField)

	_, err = report.Metric("unknown")
	assert.ErrorIs(t, err, domain.ErrUnknownMetricKey)

	sc, err := report.Scorecard()
	require.NoError(t, err)
	assert.Equal(t, "credit_v1", sc.ModelID)
	assert.Equal(t, domain.Yellow, sc.Final)
	require.Len(t, sc.Sectors, 2)
	assert.Equal(t, domain.Yellow, sc.Sectors[1].Color)
}

func TestReportStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "computing", StateComputing.String())
	assert.Equal(t, "ready", StateReady.String())
}

func TestReportMetricResultIsolated(t *testing.T) {
	reg := newTestRegistry(t, map[string]float64{"rank_ordering": 0.45, "psi": 0.04})
	report := NewReport(twoMetricModel(), NewResolver(reg))
	require.NoError(t, report.ComputeAll(context.Background(), nil, nil))

	res, err := report.Metric("psi")
	require.NoError(t, err)
	res["psi"] = 0.9
	res["extra"] = "x"

	v, err := report.MetricValue("psi", "")
	require.NoError(t, err)
	assert.Equal(t, 0.04, v, "mutating a returned result must not reach the cache")

	again, err := report.Metric("psi")
	require.NoError(t, err)
	assert.NotContains(t, again, "extra")

	c, err := report.MetricColor("psi")
	require.NoError(t, err)
	assert.Equal(t, domain.Green, c)
}

func TestReportConcurrentComputeAll(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	reg := NewMetricRegistry()
	require.NoError(t, reg.Register("rank_ordering", func(context.Context, *domain.Dataset, domain.Inputs) (domain.MetricResult, error) {
		close(started)
		<-release
		return domain.MetricResult{"value": 0.45}, nil
	}))
	require.NoError(t, reg.Register("psi", testutils.ConstMetric("psi", 0.04)))

	report := NewReport(twoMetricModel(), NewResolver(reg))
	done := make(chan error, 1)
	go func() { done <- report.ComputeAll(context.Background(), nil, nil) }()

	<-started
	assert.Equal(t, StateComputing, report.State())
	assert.ErrorIs(t, report.ComputeAll(context.Background(), nil, nil), ErrComputeInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, report.State())
}
