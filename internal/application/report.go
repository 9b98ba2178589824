// Package application provides the core business logic and orchestration for
// metric computation and RAG reporting.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

// ErrComputeInProgress indicates that ComputeAll was called while another
// call on the same report had not finished.
var ErrComputeInProgress = errors.New("computation already in progress")

// ReportState is the lifecycle state of a Report.
type ReportState int

const (
	// StateUninitialized is the initial state and the state after a failed computation.
	StateUninitialized ReportState = iota
	// StateComputing is held while ComputeAll runs.
	StateComputing
	// StateReady means the cache is complete and frozen.
	StateReady
)

// String returns the state name.
func (s ReportState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateComputing:
		return "computing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const tracerName = "github.com/ahrav/go-prism/report"

// Report computes and holds the RAG results of one model.
//
// Computation is a separate phase from reading. ComputeAll evaluates every
// metric once, aggregates sectors and the final color, and only then
// publishes the cache. Readers never trigger computation; before the report
// is ready they receive domain.ErrNotComputed.
//
// A Report is safe for concurrent reads once ready. Each render should own
// its own Report.
type Report struct {
	id       string
	model    domain.ModelSpec
	resolver *Resolver

	logger   *slog.Logger
	observer ports.ComputeObserver
	tracer   trace.Tracer

	mu      sync.RWMutex
	state   ReportState
	cache   *domain.ComputeCache
	lastErr error
}

// ReportOption configures a Report.
type ReportOption func(*Report)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ReportOption {
	return func(r *Report) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers an observer notified of compute progress.
func WithObserver(o ports.ComputeObserver) ReportOption {
	return func(r *Report) { r.observer = o }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) ReportOption {
	return func(r *Report) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithReportID sets the render id instead of generating one.
func WithReportID(id string) ReportOption {
	return func(r *Report) {
		if id != "" {
			r.id = id
		}
	}
}

// NewReport creates an uninitialized report for model.
func NewReport(model domain.ModelSpec, resolver *Resolver, opts ...ReportOption) *Report {
	r := &Report{
		id:       uuid.NewString(),
		model:    model,
		resolver: resolver,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("model_id", model.ID, "render_id", r.id)
	return r
}

// ID returns the render id.
func (r *Report) ID() string { return r.id }

// Model returns the model specification.
func (r *Report) Model() domain.ModelSpec { return r.model }

// State returns the current lifecycle state.
func (r *Report) State() ReportState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// LastError returns the error of the most recent failed computation, or nil.
func (r *Report) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// ComputeAll runs the compute phase.
//
// Metrics are resolved and colored one at a time in configuration order,
// then grouped by sector and aggregated, then reduced to the final color.
// Any failure aborts the phase, nothing is published and the report returns
// to StateUninitialized so a corrected retry starts cleanly. Calling
// ComputeAll on a ready report does nothing and returns nil.
func (r *Report) ComputeAll(ctx context.Context, data *domain.Dataset, bctx map[string]string) error {
	r.mu.Lock()
	switch r.state {
	case StateReady:
		r.mu.Unlock()
		r.logger.Debug("compute skipped, report already ready")
		return nil
	case StateComputing:
		r.mu.Unlock()
		return ErrComputeInProgress
	}
	r.state = StateComputing
	r.lastErr = nil
	r.mu.Unlock()

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "Report.ComputeAll", trace.WithAttributes(
		attribute.String("prism.model_id", r.model.ID),
		attribute.String("prism.render_id", r.id),
		attribute.Int("prism.metric_count", len(r.model.Metrics)),
	))
	defer span.End()

	if r.observer != nil {
		r.observer.OnComputeStart(ctx, r.model.ID, len(r.model.Metrics))
	}
	r.logger.Info("compute started", "metrics", len(r.model.Metrics))

	cache, err := r.compute(ctx, data, bctx)
	elapsed := time.Since(start)

	r.mu.Lock()
	if err != nil {
		r.state = StateUninitialized
		r.lastErr = err
	} else {
		r.cache = cache
		r.state = StateReady
	}
	r.mu.Unlock()

	var final domain.Color
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("compute failed", "error", err, "elapsed", elapsed)
	} else {
		final = cache.FinalColor()
		span.SetAttributes(attribute.String("prism.final_color", final.String()))
		span.SetStatus(codes.Ok, "")
		r.logger.Info("compute finished", "final_color", final.String(), "elapsed", elapsed)
	}
	if r.observer != nil {
		r.observer.OnComputeEnd(ctx, r.model.ID, final, err, elapsed)
	}
	return err
}

func (r *Report) compute(ctx context.Context, data *domain.Dataset, bctx map[string]string) (*domain.ComputeCache, error) {
	if r.resolver == nil {
		return nil, fmt.Errorf("%w: report has no resolver", domain.ErrInvalidConfiguration)
	}

	b := domain.NewCacheBuilder()
	for _, spec := range r.model.Metrics {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := r.computeMetric(ctx, spec, data, bctx)
		if err != nil {
			return nil, err
		}
		b.AddMetric(entry)
	}

	order, groups := b.SectorMembers()
	for _, sector := range order {
		agg := r.model.Sectors.For(sector)
		c, err := agg.Apply(groups[sector])
		if err != nil {
			return nil, &domain.AggregationError{Level: "sector", Sector: sector, Method: string(agg.Method), Err: err}
		}
		b.SetSector(sector, c)
		r.logger.Debug("sector aggregated", "sector", sector, "method", agg.Method, "color", c.String())
	}

	final, err := domain.AggregateFinal(b.SectorColors(), r.model.Final)
	if err != nil {
		return nil, &domain.AggregationError{Level: "final", Method: string(r.model.Final.Method), Err: err}
	}
	return b.Freeze(final), nil
}

func (r *Report) computeMetric(
	ctx context.Context,
	spec domain.MetricSpec,
	data *domain.Dataset,
	bctx map[string]string,
) (domain.MetricEntry, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "Report.metric", trace.WithAttributes(
		attribute.String("prism.metric_key", spec.Key),
		attribute.String("prism.metric_id", spec.MetricID),
		attribute.String("prism.sector", spec.Sector),
	))
	defer span.End()

	fail := func(op string, err error) (domain.MetricEntry, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.MetricEntry{}, err
		}
		return domain.MetricEntry{}, &domain.MetricError{
			Key:      spec.Key,
			MetricID: spec.MetricID,
			Sector:   spec.Sector,
			Op:       op,
			Err:      err,
		}
	}

	result, err := r.resolver.Resolve(ctx, spec, data, bctx)
	if err != nil {
		return fail("resolve", err)
	}
	value, err := result.Scalar(spec.ColorField)
	if err != nil {
		return fail("extract", err)
	}
	color, err := domain.Evaluate(value, spec.Thresholds)
	if err != nil {
		return fail("evaluate", err)
	}

	entry := domain.MetricEntry{Spec: spec, Result: result, Value: value, Color: color}
	span.SetAttributes(
		attribute.Float64("prism.metric_value", value),
		attribute.String("prism.metric_color", color.String()),
	)
	if r.observer != nil {
		r.observer.OnMetricColored(ctx, r.model.ID, entry, time.Since(start))
	}
	r.logger.Debug("metric colored", "metric", spec.Key, "value", value, "color", color.String())
	return entry, nil
}

// ready returns the cache or domain.ErrNotComputed.
func (r *Report) ready() (*domain.ComputeCache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != StateReady {
		return nil, fmt.Errorf("%w: state is %s", domain.ErrNotComputed, r.state)
	}
	return r.cache, nil
}

func (r *Report) entry(key string) (domain.MetricEntry, error) {
	cache, err := r.ready()
	if err != nil {
		return domain.MetricEntry{}, err
	}
	e, ok := cache.Metric(key)
	if !ok {
		return domain.MetricEntry{}, fmt.Errorf("%w: %q", domain.ErrUnknownMetricKey, key)
	}
	return e, nil
}

// Metric returns the raw result of the metric with the given key.
func (r *Report) Metric(key string) (domain.MetricResult, error) {
	e, err := r.entry(key)
	if err != nil {
		return nil, err
	}
	return e.Result, nil
}

// MetricValue returns one field of a metric result. An empty field selects
// the metric's color field.
func (r *Report) MetricValue(key, field string) (any, error) {
	e, err := r.entry(key)
	if err != nil {
		return nil, err
	}
	if field == "" {
		field = e.Spec.ColorField
	}
	v, ok := e.Result[field]
	if !ok {
		return nil, fmt.Errorf("%w: metric %q has no field %q", domain.ErrMissingColorField, key, field)
	}
	return v, nil
}

// MetricColor returns the color of the metric with the given key.
func (r *Report) MetricColor(key string) (domain.Color, error) {
	e, err := r.entry(key)
	if err != nil {
		return 0, err
	}
	return e.Color, nil
}

// SectorColors returns a copy of the sector colors.
func (r *Report) SectorColors() (map[string]domain.Color, error) {
	cache, err := r.ready()
	if err != nil {
		return nil, err
	}
	return cache.SectorColors(), nil
}

// FinalColor returns the model color.
func (r *Report) FinalColor() (domain.Color, error) {
	cache, err := r.ready()
	if err != nil {
		return 0, err
	}
	return cache.FinalColor(), nil
}

// Cache returns the frozen compute cache.
func (r *Report) Cache() (*domain.ComputeCache, error) { return r.ready() }

// Scorecard returns a read-only summary for renderers.
func (r *Report) Scorecard() (domain.Scorecard, error) {
	cache, err := r.ready()
	if err != nil {
		return domain.Scorecard{}, err
	}
	return domain.NewScorecard(r.model, cache), nil
}
