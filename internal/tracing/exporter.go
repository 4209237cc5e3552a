package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var errExporterClosed = errors.New("trace exporter is shut down")

// Event name and key span.RecordError writes.
const (
	exceptionEvent   = "exception"
	exceptionMessage = attribute.Key("exception.message")
)

// FileExporter appends one SpanRecord per line. Registry and HTTP
// attributes are lifted into named fields so a run can be read with jq
// without knowing attribute keys.
type FileExporter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

var _ sdktrace.SpanExporter = (*FileExporter)(nil)

// NewFileExporter appends to path, creating it and its directory.
func NewFileExporter(path string) (*FileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path from config
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{enc: json.NewEncoder(f), closer: f}, nil
}

// NewWriterExporter exports spans to w. Shutdown does not close w.
func NewWriterExporter(w io.Writer) *FileExporter {
	return &FileExporter{enc: json.NewEncoder(w)}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		return errExporterClosed
	}
	for _, span := range spans {
		if err := e.enc.Encode(newSpanRecord(span)); err != nil {
			return fmt.Errorf("encode span %s: %w", span.Name(), err)
		}
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enc = nil
	if e.closer == nil {
		return nil
	}
	err := e.closer.Close()
	e.closer = nil
	return err
}

// SpanRecord is one exported span.
type SpanRecord struct {
	TraceID  string    `json:"trace_id"`
	SpanID   string    `json:"span_id"`
	ParentID string    `json:"parent_id,omitempty"`
	Name     string    `json:"name"`
	Start    time.Time `json:"start"`
	Millis   float64   `json:"ms"`
	Failed   bool      `json:"failed,omitempty"`
	Error    string    `json:"error,omitempty"`

	// Registry operations.
	Owner     string `json:"owner,omitempty"`
	BatchID   string `json:"batch_id,omitempty"`
	Claims    int64  `json:"claims,omitempty"`
	Conflicts int64  `json:"conflicts,omitempty"`
	Removed   int64  `json:"removed,omitempty"`

	// Diagnostics requests.
	Method     string `json:"method,omitempty"`
	Route      string `json:"route,omitempty"`
	HTTPStatus int64  `json:"http_status,omitempty"`

	// Exceptions holds the messages passed to span.RecordError.
	Exceptions []string `json:"exceptions,omitempty"`
	// Attributes keeps whatever is not lifted above.
	Attributes map[string]any `json:"attributes,omitempty"`
}

func newSpanRecord(span sdktrace.ReadOnlySpan) SpanRecord {
	rec := SpanRecord{
		TraceID: span.SpanContext().TraceID().String(),
		SpanID:  span.SpanContext().SpanID().String(),
		Name:    span.Name(),
		Start:   span.StartTime().UTC(),
		Millis:  float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000,
	}
	if span.Parent().IsValid() {
		rec.ParentID = span.Parent().SpanID().String()
	}
	if status := span.Status(); status.Code == codes.Error {
		rec.Failed = true
		rec.Error = status.Description
	}

	for _, kv := range span.Attributes() {
		if !rec.lift(kv) {
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]any)
			}
			rec.Attributes[string(kv.Key)] = kv.Value.AsInterface()
		}
	}

	for _, evt := range span.Events() {
		if evt.Name != exceptionEvent {
			continue
		}
		for _, kv := range evt.Attributes {
			if kv.Key == exceptionMessage {
				rec.Exceptions = append(rec.Exceptions, kv.Value.AsString())
			}
		}
	}
	return rec
}

// lift copies a known attribute into its field and reports whether it did.
func (r *SpanRecord) lift(kv attribute.KeyValue) bool {
	switch string(kv.Key) {
	case AttrOwner:
		r.Owner = kv.Value.AsString()
	case AttrBatchID:
		r.BatchID = kv.Value.AsString()
	case AttrClaims:
		r.Claims = kv.Value.AsInt64()
	case AttrConflicts:
		r.Conflicts = kv.Value.AsInt64()
	case AttrRemoved:
		r.Removed = kv.Value.AsInt64()
	case AttrHTTPMethod:
		r.Method = kv.Value.AsString()
	case AttrHTTPRoute:
		r.Route = kv.Value.AsString()
	case AttrHTTPStatus:
		r.HTTPStatus = kv.Value.AsInt64()
	default:
		return false
	}
	return true
}
