package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

var _ ports.ComputeObserver = (*OTelComputeObserver)(nil)

// OTelComputeObserver reports compute progress as events on the span
// carried by the context and as operational metrics. It keeps no per-report
// state, so one observer may serve any number of concurrent reports.
type OTelComputeObserver struct {
	metrics ports.MetricsCollector
}

// NewOTelComputeObserver creates an observer that reports to metrics, which
// may be nil to record span events only.
func NewOTelComputeObserver(metrics ports.MetricsCollector) *OTelComputeObserver {
	return &OTelComputeObserver{metrics: metrics}
}

// OnComputeStart implements ports.ComputeObserver.
func (o *OTelComputeObserver) OnComputeStart(ctx context.Context, modelID string, metrics int) {
	trace.SpanFromContext(ctx).AddEvent("compute.start", trace.WithAttributes(
		attribute.String("model.id", modelID),
		attribute.Int("model.metrics", metrics),
	))

	if o.metrics != nil {
		o.metrics.RecordCounter("reports_started_total", 1, map[string]string{"model": modelID})
	}
}

// OnMetricColored implements ports.ComputeObserver.
func (o *OTelComputeObserver) OnMetricColored(
	ctx context.Context,
	modelID string,
	entry domain.MetricEntry,
	elapsed time.Duration,
) {
	trace.SpanFromContext(ctx).AddEvent("metric.colored", trace.WithAttributes(
		attribute.String("metric.key", entry.Spec.Key),
		attribute.String("metric.id", entry.Spec.MetricID),
		attribute.String("metric.sector", entry.Spec.Sector),
		attribute.String("metric.source", sourceTag(entry.Spec.Source)),
		attribute.Float64("metric.value", entry.Value),
		attribute.String("metric.color", entry.Color.String()),
	))

	if o.metrics == nil {
		return
	}
	o.metrics.RecordLatency("metric_compute", elapsed, map[string]string{
		"model":  modelID,
		"metric": entry.Spec.Key,
	})
	o.metrics.RecordGauge(MetricValue, entry.Value, map[string]string{
		"model":  modelID,
		"metric": entry.Spec.Key,
		"color":  entry.Color.String(),
	})
	o.metrics.RecordGauge(MetricColorSeverity, float64(entry.Color.Severity()), map[string]string{
		"model": modelID,
		"level": "metric",
		"name":  entry.Spec.Key,
	})
}

// OnComputeEnd implements ports.ComputeObserver.
func (o *OTelComputeObserver) OnComputeEnd(
	ctx context.Context,
	modelID string,
	final domain.Color,
	err error,
	elapsed time.Duration,
) {
	status := "success"
	span := trace.SpanFromContext(ctx)
	if err != nil {
		status = "error"
		span.AddEvent("compute.failed", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
	} else {
		span.AddEvent("compute.finished", trace.WithAttributes(
			attribute.String("model.final_color", final.String()),
			attribute.Int64("compute.elapsed_ms", elapsed.Milliseconds()),
		))
	}

	if o.metrics == nil {
		return
	}
	o.metrics.RecordLatency("report_compute", elapsed, map[string]string{
		"model":  modelID,
		"status": status,
	})

	finalLabel := "none"
	if err == nil {
		finalLabel = final.String()
		o.metrics.RecordGauge(MetricColorSeverity, float64(final.Severity()), map[string]string{
			"model": modelID,
			"level": "final",
			"name":  modelID,
		})
	}
	o.metrics.RecordCounter(MetricReportsTotal, 1, map[string]string{
		"model":  modelID,
		"final":  finalLabel,
		"status": status,
	})
}

func sourceTag(s domain.Source) string {
	if s == nil {
		return domain.LocalSource{}.String()
	}
	return s.String()
}
