package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartStageSpan creates a child span for a single pipeline stage (ocr,
// textgroup, translate, render) processing one page.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "stage."+stage,
		trace.WithAttributes(attribute.String("stage.name", stage)),
	)
}

// StartEngineSpan creates a child span for a call out to an OCR or
// translation engine implementation.
func StartEngineSpan(ctx context.Context, engineID, kind string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "engine."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("engine.id", engineID),
			attribute.String("engine.kind", kind),
		),
	)
}

// SetTaskAttributes adds task-level attributes to the current span.
func SetTaskAttributes(ctx context.Context, taskID, mangaRef string, pageIndex int, langCode string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.manga_ref", mangaRef),
		attribute.Int("task.page_index", pageIndex),
		attribute.String("task.language", langCode),
	)
}

// SetResultAttributes adds result-level attributes to the current span.
func SetResultAttributes(ctx context.Context, cacheHit bool, engineID string, durationMS int64) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Bool("result.cache_hit", cacheHit),
		attribute.String("result.engine_id", engineID),
		attribute.Int64("result.duration_ms", durationMS),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
