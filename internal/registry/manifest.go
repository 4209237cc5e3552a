package registry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/arbiter/internal/tracing"
)

// Entry is a manifest declaration with an id and opaque metadata.
type Entry struct {
	ID       string
	Metadata Metadata
}

// Manifest declares every resource one extension wants to register.
// Routes are plain ids; the other kinds carry metadata.
type Manifest struct {
	ContentTypes []Entry
	Routes       []string
	MenuEntries  []Entry
	UIBlocks     []Entry
	FieldGroups  []Entry
}

// Claims flattens the manifest in catalog order, then declaration order.
func (m Manifest) Claims() []Claim {
	claims := make([]Claim, 0, m.Len())
	for _, e := range m.ContentTypes {
		claims = append(claims, Claim{Kind: KindContentType, ID: e.ID, Metadata: e.Metadata})
	}
	for _, id := range m.Routes {
		claims = append(claims, Claim{Kind: KindRoute, ID: id})
	}
	for _, e := range m.MenuEntries {
		claims = append(claims, Claim{Kind: KindMenuEntry, ID: e.ID, Metadata: e.Metadata})
	}
	for _, e := range m.UIBlocks {
		claims = append(claims, Claim{Kind: KindUIBlock, ID: e.ID, Metadata: e.Metadata})
	}
	for _, e := range m.FieldGroups {
		claims = append(claims, Claim{Kind: KindFieldGroupExtension, ID: e.ID, Metadata: e.Metadata})
	}
	return claims
}

// Len returns the number of declared resources.
func (m Manifest) Len() int {
	return len(m.ContentTypes) + len(m.Routes) + len(m.MenuEntries) + len(m.UIBlocks) + len(m.FieldGroups)
}

// RegisterFromManifest registers every resource in m for owner. Processing
// is best-effort: each resource gets its own result and a per-resource
// failure never stops the batch. Outcome.Success is true iff no result has
// ActionError.
//
// The returned error is non-nil only for an empty owner or an unknown
// policy value. On an unknown policy the batch stops; resources processed
// before it stay registered and are listed in the partial outcome, and the
// resource that hit the policy is listed last with ActionError. Resources
// after it get no result and were not registered.
func (r *Registry) RegisterFromManifest(ctx context.Context, owner string, m Manifest) (Outcome, error) {
	claims := m.Claims()

	_, span := r.tracer.Start(ctx, tracing.SpanRegisterFromManifest, trace.WithAttributes(
		attribute.String(tracing.AttrOwner, owner),
		attribute.Int(tracing.AttrClaims, len(claims)),
	))
	defer span.End()

	if owner == "" {
		span.RecordError(ErrEmptyOwner)
		span.SetStatus(codes.Error, ErrEmptyOwner.Error())
		return Outcome{}, ErrEmptyOwner
	}

	out := Outcome{
		BatchID: r.newID(),
		Owner:   owner,
		Success: true,
		Results: make([]MergeResult, 0, len(claims)),
		Errors:  []string{},
	}

	var (
		events []Event
		err    error
	)
	r.mu.Lock()
	for _, c := range claims {
		var (
			res MergeResult
			evs []Event
		)
		res, evs, err = r.claimLocked(c, owner)
		events = append(events, evs...)
		if err != nil {
			out.Results = append(out.Results, MergeResult{
				Success:    false,
				Action:     ActionError,
				ResourceID: c.ID,
				Kind:       c.Kind,
				Message:    err.Error(),
			})
			break
		}
		out.Results = append(out.Results, res)
		if res.Action == ActionError {
			out.Success = false
			out.Errors = append(out.Errors, res.Message)
		}
	}
	r.mu.Unlock()

	r.emit(events)

	if err != nil {
		out.Success = false
		out.Errors = append(out.Errors, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	span.SetAttributes(
		attribute.String(tracing.AttrBatchID, out.BatchID),
		attribute.Bool(tracing.AttrSuccess, out.Success),
		attribute.Int(tracing.AttrErrors, len(out.Errors)),
	)
	return out, nil
}

// ValidateManifest previews the conflicts registering m as owner would
// raise right now. It never mutates the store or the audit log.
func (r *Registry) ValidateManifest(ctx context.Context, owner string, m Manifest) ([]Conflict, error) {
	_, span := r.tracer.Start(ctx, tracing.SpanValidateManifest, trace.WithAttributes(
		attribute.String(tracing.AttrOwner, owner),
		attribute.Int(tracing.AttrClaims, m.Len()),
	))
	defer span.End()

	if owner == "" {
		span.RecordError(ErrEmptyOwner)
		span.SetStatus(codes.Error, ErrEmptyOwner.Error())
		return nil, ErrEmptyOwner
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	conflicts := []Conflict{}
	for _, c := range m.Claims() {
		if c.ID == "" {
			continue
		}
		if conflict := r.detect(c.Kind, c.ID, owner); conflict != nil {
			conflicts = append(conflicts, *conflict)
		}
	}
	span.SetAttributes(attribute.Int(tracing.AttrConflicts, len(conflicts)))
	return conflicts, nil
}
