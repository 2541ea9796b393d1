package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voxshift"

// Tracer returns the voxshift tracer from the global provider.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartSpan starts a span on [Tracer]. End it with [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan marks span as failed when err is non-nil, then ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID is the hex trace id of the span in ctx, or "" without one.
// It ties an utterance's log lines, journal entry and HTTP responses together.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base with trace_id and span_id attributes when ctx carries a
// span. A nil base means slog.Default().
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
