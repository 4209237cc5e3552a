package tracing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNewFileExporter_CreatesParentDirectories(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "nested", "dir", "traces.jsonl")

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	_, err = os.Stat(tracePath)
	require.NoError(t, err)
	require.NoError(t, exporter.Shutdown(context.Background()))
}

func TestNewFileExporter_AppendsToExistingFile(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	require.NoError(t, os.WriteFile(tracePath, []byte(`{"existing": "data"}`+"\n"), 0o600))

	exporter, err := NewFileExporter(tracePath)
	require.NoError(t, err)

	stub := tracetest.SpanStub{Name: "test-span", StartTime: time.Now(), EndTime: time.Now().Add(time.Millisecond)}
	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
	require.NoError(t, exporter.Shutdown(context.Background()))

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	require.Equal(t, 2, lines)
}

func TestWriterExporter_LiftsRegistryAttributes(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewWriterExporter(&buf)

	traceID := trace.TraceID{1}
	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}})
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stub := tracetest.SpanStub{
		Name:        SpanRegisterFromManifest,
		SpanContext: trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{2}}),
		Parent:      parent,
		StartTime:   start,
		EndTime:     start.Add(1500 * time.Microsecond),
		Attributes: []attribute.KeyValue{
			attribute.String(AttrOwner, "appA"),
			attribute.Int(AttrClaims, 3),
			attribute.String(AttrBatchID, "batch-1"),
			attribute.Bool(AttrSuccess, false),
		},
		Status: sdktrace.Status{Code: codes.Error, Description: "unknown merge policy"},
		Events: []sdktrace.Event{
			{Name: "exception", Time: start, Attributes: []attribute.KeyValue{
				attribute.String("exception.type", "*errors.errorString"),
				attribute.String("exception.message", "unknown merge policy"),
			}},
			{Name: "note", Time: start},
		},
	}

	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))

	var rec SpanRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, SpanRegisterFromManifest, rec.Name)
	require.Equal(t, parent.SpanID().String(), rec.ParentID)
	require.True(t, rec.Failed)
	require.Equal(t, "unknown merge policy", rec.Error)
	require.InDelta(t, 1.5, rec.Millis, 0.001)
	require.True(t, start.Equal(rec.Start))
	require.Equal(t, "appA", rec.Owner)
	require.Equal(t, "batch-1", rec.BatchID)
	require.EqualValues(t, 3, rec.Claims)
	require.Equal(t, []string{"unknown merge policy"}, rec.Exceptions)
	require.Equal(t, map[string]any{AttrSuccess: false}, rec.Attributes, "unlifted attributes are kept")
}

func TestWriterExporter_HTTPSpan(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewWriterExporter(&buf)

	stub := tracetest.SpanStub{
		Name: SpanPrefixHTTP + "GET /stats",
		Attributes: []attribute.KeyValue{
			attribute.String(AttrHTTPMethod, "GET"),
			attribute.String(AttrHTTPRoute, "/stats"),
			attribute.Int(AttrHTTPStatus, 200),
		},
	}
	require.NoError(t, exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))

	var rec SpanRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "GET", rec.Method)
	require.Equal(t, "/stats", rec.Route)
	require.EqualValues(t, 200, rec.HTTPStatus)
	require.False(t, rec.Failed)
	require.Nil(t, rec.Attributes)
}

func TestWriterExporter_FromProvider(t *testing.T) {
	var buf bytes.Buffer
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewWriterExporter(&buf)))

	_, span := provider.Tracer("test").Start(context.Background(), SpanUnregisterAll)
	span.SetAttributes(attribute.String(AttrOwner, "appB"), attribute.Int(AttrRemoved, 4))
	span.RecordError(errors.New("boom"))
	span.End()
	require.NoError(t, provider.Shutdown(context.Background()))

	var rec SpanRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, SpanUnregisterAll, rec.Name)
	require.Equal(t, "appB", rec.Owner)
	require.EqualValues(t, 4, rec.Removed)
	require.Equal(t, []string{"boom"}, rec.Exceptions)
}

func TestWriterExporter_AfterShutdown(t *testing.T) {
	exporter := NewWriterExporter(&bytes.Buffer{})
	require.NoError(t, exporter.Shutdown(context.Background()))

	stub := tracetest.SpanStub{Name: "late"}
	err := exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})
	require.ErrorContains(t, err, "shut down")
}

func TestExportSpans_EmptyIsNoop(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriterExporter(&buf).ExportSpans(context.Background(), nil))
	require.Zero(t, buf.Len())
}
