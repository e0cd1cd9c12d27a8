package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"nexus-voice/internal/handler/http/requestid"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "output should be valid JSON")
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "")

	logger := NewLogger()

	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestNewLogger_TextFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_LEVEL", "debug")

	logger := NewLogger()

	_, isText := logger.Handler().(*slog.TextHandler)
	assert.True(t, isText)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelInfo, false)

	logger.Debug("this should not appear")
	logger.Info("this should appear")

	assert.NotContains(t, buf.String(), "this should not appear")
	assert.Contains(t, buf.String(), "this should appear")
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := requestid.WithRequestID(context.Background(), "550e8400-e29b-41d4-a716-446655440000")

	WithRequestID(ctx, jsonLogger(&buf)).Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", entry["request_id"])
	assert.NotContains(t, entry, "trace_id")
}

func TestWithRequestID_TraceID(t *testing.T) {
	var buf bytes.Buffer
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	WithRequestID(ctx, jsonLogger(&buf)).Info("test message")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.NotContains(t, entry, "request_id")
}

func TestWithRequestID_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	base := jsonLogger(&buf)

	logger := WithRequestID(context.Background(), base)
	logger.Info("test message")

	assert.Same(t, base, logger)
	assert.NotContains(t, buf.String(), "request_id")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer

	WithFields(jsonLogger(&buf), map[string]any{
		"capability": "synthesis",
		"attempt":    2,
	}).Info("recovery attempt")

	entry := decode(t, &buf)
	assert.Equal(t, "synthesis", entry["capability"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf).With("component", "propagation-test")

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("propagation test")

	assert.Contains(t, buf.String(), "propagation-test")
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func BenchmarkLogger_WithRequestID(b *testing.B) {
	var buf bytes.Buffer
	base := jsonLogger(&buf)
	ctx := requestid.WithRequestID(context.Background(), "benchmark-req-id")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WithRequestID(ctx, base).Info("benchmark message")
	}
}
