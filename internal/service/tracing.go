package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/grouptrip/internal/model"
)

var tracer = otel.Tracer("github.com/iliyamo/grouptrip/internal/service")

// startSpan opens a span named after the operation and tags it with the
// caller.
func startSpan(ctx context.Context, op string, actor model.Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("actor.id", actor.UserID), attribute.Bool("actor.staff", actor.Staff))
	return tracer.Start(ctx, "GroupService."+op, trace.WithAttributes(attrs...))
}

// endSpan records err on span and closes it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
