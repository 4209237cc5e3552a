package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.False(t, cfg.Enabled, "tracing should be disabled by default")
	require.Equal(t, "file", cfg.Exporter)
	require.Equal(t, "", cfg.FilePath)
	require.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	require.Equal(t, 1.0, cfg.SampleRate)
	require.Equal(t, "arbiter", cfg.ServiceName)
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "test-span")
	require.False(t, span.SpanContext().IsValid(), "no-op spans carry no ids")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesSpans(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces", "traces.jsonl")

	provider, err := NewProvider(Config{
		Enabled:     true,
		Exporter:    "file",
		FilePath:    tracePath,
		SampleRate:  1.0,
		ServiceName: "test-service",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	ctx, parent := provider.Tracer().Start(context.Background(), "parent")
	_, child := provider.Tracer().Start(ctx, "child")
	require.True(t, child.SpanContext().IsValid())
	require.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	child.End()
	parent.End()

	require.NoError(t, provider.Shutdown(context.Background()))

	content, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	require.Contains(t, string(content), `"name":"parent"`)
	require.Contains(t, string(content), `"name":"child"`)
}

func TestNewProvider_NoneExporter(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "none"})
	require.NoError(t, err)

	_, span := provider.Tracer().Start(context.Background(), "test-span")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporter_MissingPath(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "file_path required")
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	require.Nil(t, provider)
	require.Contains(t, err.Error(), "unsupported exporter")
}

func TestProvider_TracerReturnsConsistentInstance(t *testing.T) {
	provider, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	require.Equal(t, provider.Tracer(), provider.Tracer())
}
