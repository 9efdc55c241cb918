package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartResolveSpan creates a span for one resolution through a scope's
// compiled chain.
func StartResolveSpan(ctx context.Context, scope string, revision uint64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "chain.resolve",
		trace.WithAttributes(
			attribute.String("chain.scope", scope),
			attribute.Int64("chain.revision", int64(revision)),
		),
	)
}

// StartCompileSpan creates a span for a scope (re)compilation.
func StartCompileSpan(ctx context.Context, scope string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "chain.compile",
		trace.WithAttributes(attribute.String("chain.scope", scope)),
	)
}

// SetCompileAttributes records what a compilation produced.
func SetCompileAttributes(span trace.Span, scopeID string, revision uint64, links int) {
	span.SetAttributes(
		attribute.String("chain.scope_id", scopeID),
		attribute.Int64("chain.revision", int64(revision)),
		attribute.Int("chain.links", links),
	)
}

// SetResolveOutcome adds the resolution outcome to the current span.
func SetResolveOutcome(ctx context.Context, outcome string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("chain.outcome", outcome))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	RecordSpanError(trace.SpanFromContext(ctx), err)
}

// RecordSpanError records err on span and marks it failed. A nil err is a no-op.
func RecordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
