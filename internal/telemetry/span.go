package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/benvon/inbox-gateway"

// StartSpan starts a span named "<component>.<operation>" on the global provider
func StartSpan(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, component+"."+operation, trace.WithAttributes(attrs...))
}

// End records err on the span, if any, and ends it. Use with a named error return:
//
//	ctx, span := telemetry.StartSpan(ctx, "gmail", "send")
//	defer func() { telemetry.End(span, err) }()
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
