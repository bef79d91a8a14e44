package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "actionbus"

// startRunSpan creates the root span of a run.
// The caller is responsible for calling span.End().
func startRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "actionbus.run")
	span.SetAttributes(attribute.String("run_id", runID))
	return ctx, span
}

// startActionSpan creates the span of one handler step (start or resume).
// The caller is responsible for calling span.End().
func startActionSpan(ctx context.Context, actionID string, resumed bool) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "action."+actionID)
	span.SetAttributes(
		attribute.String("action", actionID),
		attribute.Bool("resumed", resumed),
	)
	return ctx, span
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
