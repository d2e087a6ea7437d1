package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Uses the global OTel tracer provider.
var tracer = otel.Tracer("arbor")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRequestSpan starts a client span covering send to settle.
	StartRequestSpan(ctx context.Context, reqType, requestID string) (context.Context, trace.Span)

	// StartHandleSpan starts a host span covering the handling of one request.
	StartHandleSpan(ctx context.Context, reqType, requestID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// Configure the provider before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartRequestSpan(ctx context.Context, reqType, requestID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "arbor.request",
		trace.WithAttributes(
			attribute.String("message.type", reqType),
			attribute.String("request.id", requestID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (m *otelSpanManager) StartHandleSpan(ctx context.Context, reqType, requestID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "arbor.handle",
		trace.WithAttributes(
			attribute.String("message.type", reqType),
			attribute.String("request.id", requestID),
		),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
