package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func spanContext(t *testing.T) context.Context {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTraceHandler_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, slog.LevelInfo)
	logger.InfoContext(context.Background(), "listing fetched", "file_count", 3)

	entry := decode(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "span_id")
	assert.Equal(t, "listing fetched", entry["msg"])
	assert.InDelta(t, 3, entry["file_count"], 0)
}

func TestTraceHandler_WithValidSpan(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, slog.LevelInfo)
	logger.InfoContext(spanContext(t), "download complete", "file_name", "a-N123456789.csv")

	entry := decode(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", entry["span_id"])
	assert.Equal(t, "a-N123456789.csv", entry["file_name"])
}

func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}

func TestTraceHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer

	h := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "downloader")})
	require.IsType(t, &TraceHandler{}, withAttrs)

	withGroup := withAttrs.WithGroup("task")
	require.IsType(t, &TraceHandler{}, withGroup)

	slog.New(withGroup).InfoContext(spanContext(t), "chunk written", "bytes", 10)

	entry := decode(t, &buf)
	assert.Equal(t, "downloader", entry["component"])
	assert.Contains(t, entry, "task")
}

func TestTraceHandler_NilHandler(t *testing.T) {
	assert.Panics(t, func() { NewTraceHandler(nil) })
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithLogger(context.Background(), NewLogger(&buf, slog.LevelDebug))
	ctx = With(ctx, "request_id", "N123456789")

	LoggerFromContext(ctx).DebugContext(ctx, "group evaluated")

	entry := decode(t, &buf)
	assert.Equal(t, "N123456789", entry["request_id"])
}

func TestLoggerFromContext_Default(t *testing.T) {
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
}
