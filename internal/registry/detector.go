package registry

import "fmt"

// detect checks a proposed claim against current state. It returns nil when
// the resource is free or already held by claimant; re-registration by the
// same owner never conflicts. The caller must hold r.mu.
func (r *Registry) detect(kind Kind, id, claimant string) *Conflict {
	existing, ok := r.store.get(kind, id)
	if !ok || existing.Owner == claimant {
		return nil
	}
	return &Conflict{
		ID:            r.newID(),
		Kind:          kind,
		ResourceID:    id,
		ExistingOwner: existing.Owner,
		NewOwner:      claimant,
		Detail:        fmt.Sprintf("%s %q is owned by %q; %q attempted to register it", kind, id, existing.Owner, claimant),
		DetectedAt:    r.now(),
	}
}

// Check reports whether claimant registering (kind, id) would conflict with
// the current owner. A detected conflict is appended to the audit log even
// though nothing is registered.
func (r *Registry) Check(kind Kind, id, claimant string) (*Conflict, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}

	r.mu.Lock()
	c := r.detect(kind, id, claimant)
	if c != nil {
		r.audit.append(*c)
	}
	r.mu.Unlock()

	if c == nil {
		return nil, nil
	}
	r.emit([]Event{conflictEvent(c)})
	out := *c
	return &out, nil
}

func conflictEvent(c *Conflict) Event {
	cp := *c
	return Event{
		Type:          EventConflict,
		Kind:          c.Kind,
		ResourceID:    c.ResourceID,
		Owner:         c.NewOwner,
		PreviousOwner: c.ExistingOwner,
		Message:       c.Detail,
		Conflict:      &cp,
	}
}
