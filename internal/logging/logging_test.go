package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	debug := New("debug", "text")
	if !debug.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}

	errOnly := New("error", "json")
	if errOnly.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info level to be disabled at error level")
	}

	fallback := New("bogus", "text")
	if !fallback.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected unknown level to fall back to info")
	}

	upper := New("WARN", "text")
	if upper.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected level names to be case insensitive")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := RequestID(ctx); id != "" {
		t.Errorf("expected empty request ID, got %q", id)
	}

	ctx = WithRequestID(ctx, "req-42")
	if id := RequestID(ctx); id != "req-42" {
		t.Errorf("expected req-42, got %q", id)
	}
}

func TestLoggerFromContext(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) == nil {
		t.Fatal("expected default logger")
	}

	custom := New("debug", "json")
	ctx = WithLogger(ctx, custom)
	if FromContext(ctx) != custom {
		t.Error("expected custom logger from context")
	}

	ctx = WithRequestID(ctx, "req-1")
	if L(ctx) == nil {
		t.Error("expected annotated logger")
	}
}
