package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every span this module starts.
const TracerName = "sagecache"

// Tracer returns the module tracer from the global provider. Without an SDK
// installed spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartPassSpan starts the span covering one evaluation pass.
func StartPassSpan(ctx context.Context, passID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "evaluate.pass",
		trace.WithAttributes(attribute.String("pass.id", passID)))
}

// StartGroupSpan starts the span covering one source group.
func StartGroupSpan(ctx context.Context, source string, blocks int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "evaluate.group",
		trace.WithAttributes(
			attribute.String("source", source),
			attribute.Int("blocks", blocks),
		))
}

// StartExecuteSpan starts the span covering one block execution.
func StartExecuteSpan(ctx context.Context, platform string, codeID int64, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "kernel.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("platform", platform),
			attribute.Int64("code.id", codeID),
			attribute.Int("attempt", attempt),
		))
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
