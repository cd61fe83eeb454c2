package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func captureLogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(NewTracingHandler(inner, "docetl", "test")), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func TestTracingHandlerServiceAttrs(t *testing.T) {
	t.Parallel()

	logger, buf := captureLogger(t)
	logger.Info("hello")

	entry := decodeLine(t, buf)
	assert.Equal(t, "docetl", entry[attrService])
	assert.Equal(t, "test", entry[attrEnv])
	assert.NotContains(t, entry, attrTraceID, "no span context, no trace fields")
}

func TestTracingHandlerInjectsSpanContext(t *testing.T) {
	t.Parallel()

	logger, buf := captureLogger(t)

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "in span")
	span.End()

	entry := decodeLine(t, buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry[attrTraceID])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry[attrSpanID])
}

func TestTracingHandlerWithGroupKeepsServiceTopLevel(t *testing.T) {
	t.Parallel()

	logger, buf := captureLogger(t)
	logger.WithGroup("reduce").Info("grouped", "groups", 3)

	entry := decodeLine(t, buf)
	assert.Equal(t, "docetl", entry[attrService], "service attr must not nest under the group")

	group, ok := entry["reduce"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, float64(3), group["groups"], 1e-9)
}
