package backend

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-prism/internal/domain"
	"github.com/ahrav/go-prism/internal/ports"
)

const tracerName = "github.com/ahrav/go-prism/infrastructure/backend"

// tracedBackend wraps each request in an OpenTelemetry span.
type tracedBackend struct {
	next        ports.Backend
	serviceName string
	tracer      trace.Tracer
}

// TracingMiddleware creates middleware that records a "backend.compute"
// span per request using the global tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(tracerName)
	return func(next ports.Backend) ports.Backend {
		return &tracedBackend{
			next:        next,
			serviceName: serviceName,
			tracer:      tracer,
		}
	}
}

// Compute executes the request within a span.
func (t *tracedBackend) Compute(ctx context.Context, req ports.BackendRequest) (domain.MetricResult, error) {
	ctx, span := t.tracer.Start(ctx, "backend.compute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("service.name", t.serviceName),
			attribute.String("backend.name", t.next.Name()),
			attribute.String("metric.id", req.MetricID),
			attribute.Int("metric.inputs", len(req.Inputs)),
		),
	)
	defer span.End()

	result, err := t.next.Compute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("metric.result_fields", len(result)))
	return result, nil
}

// Name returns the wrapped backend's name.
func (t *tracedBackend) Name() string { return t.next.Name() }
