package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestNew_TagsService(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "qrorder", "debug")

	l.Info().Msg("hello")

	line := decodeLine(t, &buf)
	assert.Equal(t, "qrorder", line["service"])
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "qrorder", "loud")

	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	l.Info().Msg("shown")
	assert.NotEmpty(t, buf.String())
}

func TestWithTrace_AddsIDs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "qrorder", "info")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	traced := WithTrace(ctx, l)
	traced.Info().Msg("traced")

	line := decodeLine(t, &buf)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", line["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", line["span_id"])
}

func TestWithTrace_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "qrorder", "info")

	plain := WithTrace(context.Background(), l)
	plain.Info().Msg("plain")

	line := decodeLine(t, &buf)
	_, ok := line["trace_id"]
	assert.False(t, ok)
}
