package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTraceContextFrom_NoSpan(t *testing.T) {
	traceID, spanID := TraceContextFrom(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestLogTraceFields_NoSpanAddsNothing(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := zerolog.New(buf)

	logger.Info().Func(LogTraceFields(context.Background())).Msg("ticket_sanitized")

	out := buf.String()
	assert.NotContains(t, out, "trace_id")
	assert.NotContains(t, out, "span_id")
}

func TestLogTraceFields_CorrelatesWithActiveSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "sanitize.ticket")
	defer span.End()

	buf := new(bytes.Buffer)
	logger := zerolog.New(buf)
	logger.Info().Func(LogTraceFields(ctx)).Msg("ticket_sanitized")

	traceID, spanID := TraceContextFrom(ctx)
	assert.NotEmpty(t, traceID)
	assert.Contains(t, buf.String(), traceID)
	assert.Contains(t, buf.String(), spanID)
}
