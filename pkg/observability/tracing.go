package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the OpenTelemetry tracer name.
const TracerName = "codex"

// StartExecSpan opens a span for one intercepted exec attempt.
func StartExecSpan(ctx context.Context, sessionID, file string, argv []string) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	attrs := []attribute.KeyValue{
		attribute.String("session.id", sessionID),
		attribute.String("exec.file", file),
		attribute.StringSlice("exec.argv", argv),
	}
	return tracer.Start(ctx, "escalation.decide", trace.WithAttributes(attrs...))
}

// EndSpan closes a span, recording the decision and any error.
func EndSpan(span trace.Span, action string, err error) {
	span.SetAttributes(attribute.String("escalation.action", action))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ExtractTraceID returns the active trace id, or empty when none.
func ExtractTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// ExtractSpanID returns the active span id, or empty when none.
func ExtractSpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}
