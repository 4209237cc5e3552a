// Package server exposes a read-mostly diagnostics API over the registry:
// ownership lookups, the conflict audit log, live statistics, policy
// tables and a server-sent event stream of registry activity.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/arbiter/internal/journal"
	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/presentation"
	"github.com/zjrosen/arbiter/internal/pubsub"
	"github.com/zjrosen/arbiter/internal/registry"
	"github.com/zjrosen/arbiter/internal/tracing"
)

// Reader is the registry surface the API serves. List returns records
// sorted by resource id.
type Reader interface {
	Get(kind registry.Kind, id string) (registry.Record, bool)
	List(kind registry.Kind) []registry.Record
	Owners() []string
	ResourcesByOwner(owner string) map[registry.Kind][]string
	Policies() registry.PolicyTable
	ConflictHistory() []registry.Conflict
	ClearConflictHistory()
	Stats() registry.Stats
	Subscribe(ctx context.Context) <-chan pubsub.Event[registry.Event]
}

// Archive answers conflict queries against the persistent journal.
type Archive interface {
	List(ctx context.Context, q journal.Query) ([]registry.Conflict, error)
}

// LogSource streams formatted log lines until ctx is done.
type LogSource func(ctx context.Context) <-chan pubsub.Event[string]

// Handler provides the HTTP endpoints.
type Handler struct {
	reg     Reader
	archive Archive
	metrics http.Handler
	logs    LogSource
	tracer  trace.Tracer
	started time.Time

	heartbeat time.Duration
}

// HandlerConfig configures the API handler.
type HandlerConfig struct {
	// Registry is the registry to expose (required).
	Registry Reader
	// Archive serves GET /conflicts?source=journal (optional).
	Archive Archive
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Logs is mounted at /logs when set.
	Logs LogSource
	// Tracer wraps every request in a server span when set.
	Tracer trace.Tracer
}

// NewHandler creates a handler serving reg only.
func NewHandler(reg Reader) *Handler {
	return NewHandlerWithConfig(HandlerConfig{Registry: reg})
}

// NewHandlerWithConfig creates a new API handler with full configuration.
func NewHandlerWithConfig(cfg HandlerConfig) *Handler {
	return &Handler{
		reg:       cfg.Registry,
		archive:   cfg.Archive,
		metrics:   cfg.Metrics,
		logs:      cfg.Logs,
		tracer:    cfg.Tracer,
		started:   time.Now(),
		heartbeat: 30 * time.Second,
	}
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracing.HTTPMiddleware(h.tracer))

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/policies", h.Policies)

	r.Get("/conflicts", h.Conflicts)
	r.Delete("/conflicts", h.ClearConflicts)

	r.Get("/owners", h.ListOwners)
	r.Get("/owners/{owner}", h.OwnerResources)

	r.Get("/resources/{kind}", h.ListResources)
	r.Get("/resources/{kind}/{id}", h.GetResource)

	r.Get("/events", h.StreamEvents)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if h.logs != nil {
		r.Get("/logs", h.StreamLogs)
	}
	return r
}

// === Response Types ===

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Resources int    `json:"resources"`
	Uptime    string `json:"uptime"`
}

// ConflictsResponse is the response body for GET /conflicts.
type ConflictsResponse struct {
	Source    string                     `json:"source"` // "memory" or "journal"
	Conflicts []presentation.ConflictDTO `json:"conflicts"`
	Total     int                        `json:"total"`
}

// OwnersResponse is the response body for GET /owners.
type OwnersResponse struct {
	Owners []string `json:"owners"`
	Total  int      `json:"total"`
}

// ResourcesResponse is the response body for GET /resources/{kind}.
type ResourcesResponse struct {
	Kind      string                   `json:"kind"`
	Resources []presentation.RecordDTO `json:"resources"`
	Total     int                      `json:"total"`
}

// === Handlers ===

// Health reports liveness.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Resources: h.reg.Stats().TotalResources,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// Stats returns per-kind counts.
// GET /stats
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, presentation.FromStats(h.reg.Stats()))
}

// Policies returns the active policy table keyed by kind name.
// GET /policies
func (h *Handler) Policies(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.reg.Policies().Strings())
}

// Conflicts returns the audit log, oldest first. With source=journal it
// queries the archive instead, newest first, honouring kind, owner and
// limit.
// GET /conflicts
func (h *Handler) Conflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var kind *registry.Kind
	if name := q.Get("kind"); name != "" {
		k, err := registry.ParseKind(name)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_kind", err.Error(), "")
			return
		}
		kind = &k
	}
	owner := q.Get("owner")

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer", raw)
			return
		}
		limit = n
	}

	switch source := q.Get("source"); source {
	case "", "memory":
		conflicts := filterConflicts(h.reg.ConflictHistory(), kind, owner, limit)
		h.writeConflicts(w, "memory", conflicts)
	case "journal":
		if h.archive == nil {
			h.writeError(w, http.StatusNotFound, "journal_disabled", "Conflict journal is not enabled", "")
			return
		}
		conflicts, err := h.archive.List(r.Context(), journal.Query{Kind: kind, Owner: owner, Limit: limit})
		if err != nil {
			log.ErrorErr(log.CatServer, "Journal query failed", err)
			h.writeError(w, http.StatusInternalServerError, "journal_error", "Failed to query journal", err.Error())
			return
		}
		h.writeConflicts(w, "journal", conflicts)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_source", fmt.Sprintf("unknown source %q", source), "")
	}
}

// ClearConflicts empties the in-memory audit log. The journal is untouched.
// DELETE /conflicts
func (h *Handler) ClearConflicts(w http.ResponseWriter, _ *http.Request) {
	h.reg.ClearConflictHistory()
	log.Info(log.CatServer, "Conflict history cleared")
	w.WriteHeader(http.StatusNoContent)
}

// ListOwners returns every owner holding at least one resource.
// GET /owners
func (h *Handler) ListOwners(w http.ResponseWriter, _ *http.Request) {
	owners := h.reg.Owners()
	if owners == nil {
		owners = []string{}
	}
	h.writeJSON(w, http.StatusOK, OwnersResponse{Owners: owners, Total: len(owners)})
}

// OwnerResources returns what one owner holds. Unknown owners hold nothing.
// GET /owners/{owner}
func (h *Handler) OwnerResources(w http.ResponseWriter, r *http.Request) {
	owner := pathParam(r, "owner")
	h.writeJSON(w, http.StatusOK, presentation.FromOwnerResources(owner, h.reg.ResourcesByOwner(owner)))
}

// ListResources returns every registration of one kind, sorted by id.
// GET /resources/{kind}
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	records := h.reg.List(kind)
	h.writeJSON(w, http.StatusOK, ResourcesResponse{
		Kind:      kind.String(),
		Resources: presentation.FromRecords(records),
		Total:     len(records),
	})
}

// GetResource returns the live registration of one resource.
// GET /resources/{kind}/{id}
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	record, found := h.reg.Get(kind, id)
	if !found {
		h.writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("%s %q is not registered", kind, id), "")
		return
	}
	h.writeJSON(w, http.StatusOK, presentation.FromRecord(record))
}

// StreamEvents streams registry events via SSE.
// GET /events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := h.startStream(w)
	if !ok {
		return
	}

	ctx := r.Context()
	events := h.reg.Subscribe(ctx)

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(eventToJSON(event))
			if err != nil {
				log.Error(log.CatServer, "Failed to marshal event", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// StreamLogs streams log lines via SSE.
// GET /logs
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lines := h.logs(ctx)
	if lines == nil {
		h.writeError(w, http.StatusNotFound, "logs_disabled", "Logging is not initialized", "")
		return
	}

	flusher, ok := h.startStream(w)
	if !ok {
		return
	}
	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case line, ok := <-lines:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: log\ndata: %s\n\n", strings.TrimRight(line.Payload, "\n"))
			flusher.Flush()
		}
	}
}

// === Helpers ===

// startStream sets the SSE headers. It writes an error and returns false
// when w cannot flush.
func (h *Handler) startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, true
}

func (h *Handler) kindParam(w http.ResponseWriter, r *http.Request) (registry.Kind, bool) {
	kind, err := registry.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_kind", err.Error(), "")
		return 0, false
	}
	return kind, true
}

// pathParam decodes a route parameter. Resource ids such as routes carry
// slashes and arrive escaped ("%2Fshop%2Fcart").
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (h *Handler) writeConflicts(w http.ResponseWriter, source string, conflicts []registry.Conflict) {
	h.writeJSON(w, http.StatusOK, ConflictsResponse{
		Source:    source,
		Conflicts: presentation.FromConflicts(conflicts),
		Total:     len(conflicts),
	})
}

// filterConflicts keeps the newest limit matches, preserving log order.
func filterConflicts(all []registry.Conflict, kind *registry.Kind, owner string, limit int) []registry.Conflict {
	out := make([]registry.Conflict, 0, len(all))
	for _, c := range all {
		if kind != nil && c.Kind != *kind {
			continue
		}
		if owner != "" && c.ExistingOwner != owner && c.NewOwner != owner {
			continue
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func eventToJSON(event pubsub.Event[registry.Event]) map[string]any {
	e := event.Payload
	data := map[string]any{
		"type":        string(event.Type),
		"kind":        e.Kind.String(),
		"resource_id": e.ResourceID,
		"owner":       e.Owner,
		"timestamp":   event.Timestamp,
	}
	if e.PreviousOwner != "" {
		data["previous_owner"] = e.PreviousOwner
	}
	if e.Message != "" {
		data["message"] = e.Message
	}
	if e.Action != "" {
		data["action"] = string(e.Action)
	}
	if e.Conflict != nil {
		data["conflict"] = presentation.FromConflict(*e.Conflict)
	}
	return data
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatServer, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
