package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-prism/internal/domain"
)

// DefaultBatchConcurrency bounds the number of reports computed at once.
const DefaultBatchConcurrency = 4

// RenderJob is one model to render in a batch.
type RenderJob struct {
	Model domain.ModelSpec
	Data  *domain.Dataset
	// Context is forwarded to backends as the backend context.
	Context map[string]string
}

// RenderOutcome is the result of one RenderJob. Exactly one of Scorecard
// and Err is set: a model that fails never produces a scorecard.
type RenderOutcome struct {
	ModelID   string
	ReportID  string
	Scorecard *domain.Scorecard
	Err       error
	Elapsed   time.Duration
}

// OK reports whether the model rendered successfully.
func (o RenderOutcome) OK() bool { return o.Err == nil }

// BatchOption configures RenderAll.
type BatchOption func(*batchConfig)

type batchConfig struct {
	concurrency int
	logger      *slog.Logger
	reportOpts  []ReportOption
}

// WithConcurrency sets the number of models computed in parallel.
// Values below one are ignored.
func WithConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchLogger sets the logger used for batch progress and passed to
// each report.
func WithBatchLogger(l *slog.Logger) BatchOption {
	return func(c *batchConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReportOptions appends options applied to every report of the batch.
func WithReportOptions(opts ...ReportOption) BatchOption {
	return func(c *batchConfig) { c.reportOpts = append(c.reportOpts, opts...) }
}

// RenderAll computes one Report per job, running up to the configured
// concurrency in parallel. Each report is computed sequentially and owns its
// cache, so jobs share nothing but the resolver.
//
// Outcomes are returned in job order. A failing model does not stop the
// others; the returned error joins every per-model failure and is nil when
// all models rendered. Cancelling ctx stops jobs that have not started and
// interrupts running ones between metrics.
func RenderAll(ctx context.Context, resolver *Resolver, jobs []RenderJob, opts ...BatchOption) ([]RenderOutcome, error) {
	cfg := batchConfig{concurrency: DefaultBatchConcurrency, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	outcomes := make([]RenderOutcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(cfg.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			outcomes[i] = renderOne(ctx, resolver, job, cfg)
			return nil
		})
	}
	// Jobs report failures through their outcome, never through the group.
	_ = g.Wait()

	var (
		errs   []error
		failed int
	)
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			errs = append(errs, fmt.Errorf("model %s: %w", o.ModelID, o.Err))
		}
	}
	cfg.logger.Info("batch render finished", "models", len(jobs), "failed", failed)
	return outcomes, errors.Join(errs...)
}

func renderOne(ctx context.Context, resolver *Resolver, job RenderJob, cfg batchConfig) RenderOutcome {
	start := time.Now()
	out := RenderOutcome{ModelID: job.Model.ID}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	opts := append([]ReportOption{WithLogger(cfg.logger)}, cfg.reportOpts...)
	report := NewReport(job.Model, resolver, opts...)
	out.ReportID = report.ID()

	if err := report.ComputeAll(ctx, job.Data, job.Context); err != nil {
		out.Err = err
		out.Elapsed = time.Since(start)
		cfg.logger.Warn("model render failed", "model_id", job.Model.ID, "error", err)
		return out
	}

	sc, err := report.Scorecard()
	if err != nil {
		out.Err = err
	} else {
		out.Scorecard = &sc
	}
	out.Elapsed = time.Since(start)
	return out
}
