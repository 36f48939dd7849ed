package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l = l.With(String("component", "test"))
	l.Debug("a")
	l.Info("b", Int("n", 1))
	l.Warn("c")
	l.Error("d", Err(errors.New("boom")))
}

func TestSlogLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	l.With(String("op", "merge")).Info("done", Int("pages", 3), Float("ratio", 0.5))

	out := buf.String()
	for _, want := range []string{"msg=done", "op=merge", "pages=3", "ratio=0.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
}

func TestSlogLoggerNilUsesDefault(t *testing.T) {
	if NewSlogLogger(nil) == nil {
		t.Fatalf("nil argument must still return a logger")
	}
}
