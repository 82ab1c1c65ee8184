package playback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestController_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	registry, packets := session(t)
	c, _ := newContainer(t, packets)
	ctl := load(t, c, registry, newClient(t), WithTracer(provider.Tracer("test")))
	require.NoError(t, ctl.Seek(50))
	require.NoError(t, ctl.Seek(10))

	var names []string
	parents := make(map[string]string)
	byID := make(map[string]string)
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
		byID[s.SpanContext().SpanID().String()] = s.Name()
	}
	for _, s := range recorder.Ended() {
		if s.Parent().IsValid() {
			parents[s.Name()] = byID[s.Parent().SpanID().String()]
		}
	}

	assert.Contains(t, names, "playback.Load")
	assert.Contains(t, names, "playback.Analyse")
	assert.Contains(t, names, "playback.LoadCache")
	assert.Equal(t, "playback.Load", parents["playback.Analyse"])
	assert.Equal(t, "playback.Load", parents["playback.LoadCache"])

	var seeks int
	for _, s := range recorder.Ended() {
		if s.Name() == "playback.Seek" {
			seeks++
		}
	}
	assert.Equal(t, 2, seeks)
}
