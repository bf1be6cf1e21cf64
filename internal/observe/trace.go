package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the commentator tracer.
const tracerName = "github.com/MrWong99/commentator"

// Tracer returns the package-level [trace.Tracer] for the orchestrator. It
// uses the globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Pipeline stage span names, one per boundary the commentary pipeline
// crosses between a completed turn and an emitted (or rejected) comment.
const (
	SpanProcessJob      = "app.processJob"
	SpanGenerateComment = "app.generateComment"
)

// StartPipelineSpan starts a span for one of the named pipeline stages above
// and tags it with the triggering turn's id, so a trace can be correlated
// back to the transcript turn that caused it.
func StartPipelineSpan(ctx context.Context, stage, turnID string) (context.Context, trace.Span) {
	return StartSpan(ctx, stage, trace.WithAttributes(attribute.String("turn_id", turnID)))
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
