package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartStoreSpan creates a child span around one storage operation.
func StartStoreSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "store."+op,
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.operation", op),
		),
	)
}

// StartEnrichSpan creates a client span for a call to an enrichment
// workflow. kind is "advice" or "system_info".
func StartEnrichSpan(ctx context.Context, kind, url string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "enrich."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("enrich.kind", kind),
			attribute.String("enrich.url", url),
		),
	)
}

// InjectHeaders writes the current trace context into req's headers so
// the workflow can continue the trace.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetIngestAttributes annotates the current span with the outcome of an
// ingest request.
func SetIngestAttributes(ctx context.Context, sessionID, conversationID string, hasPrompt, hasAIPrompt, hasUsage bool) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("conversation.id", conversationID),
		attribute.Bool("ingest.prompt", hasPrompt),
		attribute.Bool("ingest.ai_prompt", hasAIPrompt),
		attribute.Bool("ingest.usage", hasUsage),
	)
}

// SetAdviceAttributes annotates the current span with an advice lookup.
func SetAdviceAttributes(ctx context.Context, conversationID string, pairs int, cacheHit bool) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("advice.pairs", pairs),
		attribute.Bool("advice.cache_hit", cacheHit),
	)
}

// RecordError records err on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
