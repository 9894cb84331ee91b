package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
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

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZap(zap.New(core)).With(String("run", "r1"))

	log.Info("file processed", Int("batch", 2), Bool("bulk", true), Err(errors.New("boom")))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["run"] != "r1" {
		t.Fatalf("missing inherited field: %+v", ctx)
	}
	if ctx["batch"] != int64(2) {
		t.Fatalf("unexpected batch field: %#v", ctx["batch"])
	}
	if ctx["bulk"] != true {
		t.Fatalf("unexpected bulk field: %#v", ctx["bulk"])
	}
	if ctx["error"] != "boom" {
		t.Fatalf("unexpected error field: %#v", ctx["error"])
	}
}

func TestLogTracerReportsErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := LogTracer(NewZap(zap.New(core)))

	_, span := tracer.StartSpan(context.Background(), "batch")
	span.SetTag("size", 3)
	span.SetError(errors.New("upload failed"))
	span.Finish()

	warn := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warn) != 1 {
		t.Fatalf("expected one warning, got %d", len(warn))
	}
	if got := warn[0].ContextMap()["span"]; got != "batch" {
		t.Fatalf("unexpected span name %v", got)
	}
}

func TestBuildZapRejectsUnknownLevel(t *testing.T) {
	if _, err := BuildZap(ZapOptions{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
