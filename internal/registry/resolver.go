package registry

import "fmt"

// Claim is one resource an owner wants to register.
type Claim struct {
	Kind     Kind
	ID       string
	Metadata Metadata
}

// Register claims (kind, id) for owner, resolving any conflict with the
// kind's merge policy. Detection, resolution and the store update happen
// under one lock, so two racing claimants can never both win.
//
// A policy=error conflict is reported in the result, not as an error. The
// returned error is non-nil only for caller miswiring (unknown kind, empty
// owner) or an unknown policy value.
func (r *Registry) Register(kind Kind, id, owner string, meta Metadata) (MergeResult, error) {
	if !kind.Valid() {
		return MergeResult{}, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	if owner == "" {
		return MergeResult{}, ErrEmptyOwner
	}

	r.mu.Lock()
	res, events, err := r.claimLocked(Claim{Kind: kind, ID: id, Metadata: meta}, owner)
	r.mu.Unlock()

	r.emit(events)
	return res, err
}

// claimLocked runs detect → audit → resolve → store for one claim. The
// caller must hold the write lock and emit the returned events after
// releasing it.
func (r *Registry) claimLocked(c Claim, owner string) (MergeResult, []Event, error) {
	if c.ID == "" {
		res := MergeResult{
			Success: false,
			Action:  ActionError,
			Kind:    c.Kind,
			Message: ErrEmptyResourceID.Error(),
		}
		return res, []Event{resultEvent(res, owner, "")}, nil
	}

	var events []Event
	conflict := r.detect(c.Kind, c.ID, owner)
	if conflict != nil {
		r.audit.append(*conflict)
		events = append(events, conflictEvent(conflict))
	}

	res, previous, err := r.resolve(c, owner, conflict)
	if err != nil {
		return res, events, err
	}
	events = append(events, resultEvent(res, owner, previous))
	return res, events, nil
}

// resolve applies the kind's policy. It returns the result and, when the
// store changed hands, the previous owner.
func (r *Registry) resolve(c Claim, owner string, conflict *Conflict) (MergeResult, string, error) {
	res := MergeResult{ResourceID: c.ID, Kind: c.Kind}

	if conflict == nil {
		r.putLocked(c, owner)
		res.Success = true
		res.Action = ActionRegistered
		return res, "", nil
	}

	existing := conflict.ExistingOwner
	switch policy := r.policies[c.Kind]; policy {
	case PolicyIgnore:
		res.Success = true
		res.Action = ActionIgnored
		res.Message = fmt.Sprintf("%s %q stays with %q; claim by %q ignored", c.Kind, c.ID, existing, owner)
	case PolicyOverride:
		r.putLocked(c, owner)
		res.Success = true
		res.Action = ActionOverridden
		res.Message = fmt.Sprintf("%s %q overridden: %q replaces %q", c.Kind, c.ID, owner, existing)
		return res, existing, nil
	case PolicyError:
		res.Success = false
		res.Action = ActionError
		res.Message = fmt.Sprintf("%s %q is already registered by %q; %q cannot register it", c.Kind, c.ID, existing, owner)
	case PolicyFallback:
		res.Success = true
		res.Action = ActionIgnored
		res.Message = fmt.Sprintf("%s %q keeps the existing definition from %q as fallback; %q not applied", c.Kind, c.ID, existing, owner)
	default:
		return MergeResult{}, "", fmt.Errorf("resolve %s %q: %w: %q", c.Kind, c.ID, ErrUnknownPolicy, string(policy))
	}
	return res, "", nil
}

// putLocked stores the claim for owner. A same-owner re-registration keeps
// the original registration time and replaces the metadata.
func (r *Registry) putLocked(c Claim, owner string) {
	registeredAt := r.now()
	if prev, ok := r.store.get(c.Kind, c.ID); ok && prev.Owner == owner {
		registeredAt = prev.RegisteredAt
	}
	r.store.put(c.Kind, c.ID, &Record{
		ResourceID:   c.ID,
		Kind:         c.Kind,
		Owner:        owner,
		RegisteredAt: registeredAt,
		Metadata:     c.Metadata.Clone(),
	})
	r.invalidateOwnersLocked()
}
