package registry

import (
	"maps"
	"time"
)

// Metadata is an opaque payload attached to a registration. The registry
// stores and returns it but never looks inside.
type Metadata map[string]any

// Clone returns a shallow copy, or nil for an empty bag.
func (m Metadata) Clone() Metadata {
	if len(m) == 0 {
		return nil
	}
	out := make(Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// Record is the single live registration for a (kind, resource id) pair.
type Record struct {
	ResourceID   string    `json:"resource_id"`
	Kind         Kind      `json:"kind"`
	Owner        string    `json:"owner"`
	RegisteredAt time.Time `json:"registered_at"`
	Metadata     Metadata  `json:"metadata,omitempty"`
}

func (r *Record) clone() Record {
	out := *r
	out.Metadata = r.Metadata.Clone()
	return out
}

// Conflict describes a claim on a resource already owned by a different
// owner. Conflicts are observability records and never drive correctness.
type Conflict struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	ResourceID    string    `json:"resource_id"`
	ExistingOwner string    `json:"existing_owner"`
	NewOwner      string    `json:"new_owner"`
	Detail        string    `json:"detail"`
	DetectedAt    time.Time `json:"detected_at"`
}

// Action is the terminal decision taken for one registration attempt.
type Action string

const (
	ActionRegistered Action = "registered"
	ActionIgnored    Action = "ignored"
	ActionOverridden Action = "overridden"
	ActionError      Action = "error"
)

// MergeResult reports the outcome of a single registration attempt.
type MergeResult struct {
	Success    bool   `json:"success"`
	Action     Action `json:"action"`
	ResourceID string `json:"resource_id"`
	Kind       Kind   `json:"kind"`
	Message    string `json:"message,omitempty"`
}

// Outcome aggregates the per-resource results of one manifest registration.
// Success is true iff no result has ActionError.
type Outcome struct {
	BatchID string        `json:"batch_id"`
	Owner   string        `json:"owner"`
	Success bool          `json:"success"`
	Results []MergeResult `json:"results"`
	Errors  []string      `json:"errors"`
}

// Stats is a point-in-time summary of registry state.
type Stats struct {
	Kinds          map[Kind]int `json:"kinds"`
	TotalResources int          `json:"total_resources"`
	TotalConflicts int          `json:"total_conflicts"`
	Owners         int          `json:"owners"`
}
