package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type captureWriter struct {
	entries []string
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.entries = append(c.entries, string(p))
	return len(p), nil
}

func TestLoggingExporterEmitsSpan(t *testing.T) {
	writer := &captureWriter{}
	exporter := NewLoggingExporter(zerolog.New(writer))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	ctx := context.Background()
	_, span := provider.Tracer("test").Start(ctx, "POST /api/auth/login")
	span.SetAttributes(attribute.String("gateway.class", "auth"))
	span.AddEvent("gateway.denied")
	span.End()
	require.NoError(t, provider.Shutdown(ctx))

	require.Len(t, writer.entries, 1)
	require.Contains(t, writer.entries[0], `"gateway.class":"auth"`)
	require.Contains(t, writer.entries[0], `"span_events":["gateway.denied"]`)
	require.Contains(t, writer.entries[0], `"component":"otel"`)
}

func TestSpanRecorderCollectsCompletedSpans(t *testing.T) {
	recorder := NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx := context.Background()
	_, span := provider.Tracer("test").Start(ctx, "first")
	span.End()

	_, span = provider.Tracer("test").Start(ctx, "first")
	span.AddEvent("retry")
	span.End()

	require.Len(t, recorder.Completed(), 2)
	require.NotNil(t, recorder.FirstSpanNamed("first"))
	require.Nil(t, recorder.FirstSpanNamed("missing"))
	require.Equal(t, []string{"retry"}, recorder.EventNames("first"))

	recorder.Reset()
	require.Empty(t, recorder.Completed())
	require.NoError(t, provider.Shutdown(ctx))
}
