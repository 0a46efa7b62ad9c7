package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-router/internal/apperror"
)

// Tracer starts spans for request-scoped work.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// Span is the subset of trace.Span the router needs, plus NoticeError.
type Span interface {
	SetAttributes(kv ...attribute.KeyValue)
	SetStatus(code codes.Code, description string)
	NoticeError(err error)
	End(opts ...trace.SpanEndOption)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the global tracer provider.
func NewTracer(name string) Tracer {
	return &otelTracer{tracer: otel.Tracer(name)}
}

// NewTracerFrom wraps an existing tracer (tests pass an SDK tracer).
func NewTracerFrom(t trace.Tracer) Tracer {
	return &otelTracer{tracer: t}
}

func (t *otelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &otelSpan{span}
}

type otelSpan struct {
	trace.Span
}

// NoticeError records err, marks the span failed and tags the error code.
func (s *otelSpan) NoticeError(err error) {
	if err == nil {
		return
	}
	s.Span.RecordError(err)
	s.Span.SetStatus(codes.Error, err.Error())
	s.Span.SetAttributes(attribute.String("error.code", string(apperror.GetCode(err))))
}
