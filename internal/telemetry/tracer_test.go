// SPDX-License-Identifier: MIT
package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ExporterType: "grpc"})
	require.NoError(t, err)
	assert.False(t, provider.Enabled())
	assert.NoError(t, provider.Shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "daddylive-test",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:1",
		SamplingRate: 0.5,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		otel.SetTracerProvider(noop.NewTracerProvider())
	})
	assert.True(t, provider.Enabled())
	_ = provider.Shutdown(context.Background())
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		assert.Contains(t, samplerFor(tt.rate).Description(), tt.want)
	}
}

func TestNilProviderShutdown(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/stream", "/stream?", 200)
	assert.Contains(t, attrs, attribute.Int(HTTPStatusCodeKey, 200))

	assert.Empty(t, ChannelAttributes("", ""))
	assert.Equal(t, []attribute.KeyValue{attribute.String(ChannelIDKey, "51")}, ChannelAttributes("51", ""))

	probe := ProbeAttributes("stream/stream-{id}.php", 1)
	assert.Contains(t, probe, attribute.Int(ResolveDepthKey, 1))
}
