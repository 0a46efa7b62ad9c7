package apm

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fd1az/quote-router/internal/apperror"
)

func TestSpan_NoticeErrorTagsCode(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerFrom(tp.Tracer("test"))

	_, span := tracer.Start(context.Background(), "work")
	span.NoticeError(nil)
	span.NoticeError(apperror.New(apperror.CodeNoQuoteAvailable))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected one span, got %d", len(ended))
	}
	s := ended[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status())
	}

	var code string
	for _, kv := range s.Attributes() {
		if kv.Key == "error.code" {
			code = kv.Value.AsString()
		}
	}
	if code != string(apperror.CodeNoQuoteAvailable) {
		t.Errorf("expected error.code NO_QUOTE_AVAILABLE, got %q", code)
	}
	if len(s.Events()) != 1 {
		t.Errorf("expected one exception event, got %d", len(s.Events()))
	}
}
