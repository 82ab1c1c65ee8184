package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/annel0/replay-engine/internal/config"
)

func TestInitTelemetryDisabled(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInstall(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	rec := tracetest.NewSpanRecorder()
	shutdown, err := install(context.Background(), "replay-test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "playback.Load")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "playback.Load", ended[0].Name())
	name, ok := ended[0].Resource().Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "replay-test", name.AsString())
}
