package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fd1az/quote-router/internal/logger"
)

func TestLogger_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, logger.LevelInfo, "quote-router", func(ctx context.Context) string {
		return "abc123"
	})

	log.Info(context.Background(), "quote selected", "provider", "0x")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", buf.String(), err)
	}

	if rec["msg"] != "quote selected" {
		t.Errorf("expected msg 'quote selected', got %v", rec["msg"])
	}
	if rec["service"] != "quote-router" {
		t.Errorf("expected service attr, got %v", rec["service"])
	}
	if rec["provider"] != "0x" {
		t.Errorf("expected provider attr, got %v", rec["provider"])
	}
	if rec["trace_id"] != "abc123" {
		t.Errorf("expected trace_id attr, got %v", rec["trace_id"])
	}
	if file, _ := rec["file"].(string); !strings.HasPrefix(file, "logger_test.go:") {
		t.Errorf("expected caller file logger_test.go, got %v", rec["file"])
	}
}

func TestLogger_RespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, logger.LevelWarn, "svc", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	log.Error(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected error record, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logger.Level{
		"debug":   logger.LevelDebug,
		"info":    logger.LevelInfo,
		"warn":    logger.LevelWarn,
		"error":   logger.LevelError,
		"verbose": logger.LevelInfo,
	}

	for in, want := range tests {
		if got := logger.ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
