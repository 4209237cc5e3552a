// Package presentation converts registry values into the JSON shapes the
// CLI prints and the diagnostics server returns.
package presentation

import (
	"time"

	"github.com/zjrosen/arbiter/internal/registry"
)

// ResultDTO is one per-resource registration result.
type ResultDTO struct {
	Kind       string `json:"kind"`
	ResourceID string `json:"resource_id"`
	Action     string `json:"action"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
}

// OutcomeDTO is the result of registering one manifest.
type OutcomeDTO struct {
	Source  string      `json:"source,omitempty"` // manifest file path
	BatchID string      `json:"batch_id"`
	Owner   string      `json:"owner"`
	Success bool        `json:"success"`
	Results []ResultDTO `json:"results"`
	Errors  []string    `json:"errors"`
}

// ConflictDTO is one audit log entry.
type ConflictDTO struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	ResourceID    string    `json:"resource_id"`
	ExistingOwner string    `json:"existing_owner"`
	NewOwner      string    `json:"new_owner"`
	Detail        string    `json:"detail"`
	DetectedAt    time.Time `json:"detected_at"`
}

// StatsDTO summarizes registry state. Every kind is present in Kinds.
type StatsDTO struct {
	Kinds          map[string]int `json:"kinds"`
	TotalResources int            `json:"total_resources"`
	TotalConflicts int            `json:"total_conflicts"`
	Owners         int            `json:"owners"`
}

// OwnerResourcesDTO lists what one owner holds, keyed by kind name.
type OwnerResourcesDTO struct {
	Owner     string              `json:"owner"`
	Resources map[string][]string `json:"resources"`
	Total     int                 `json:"total"`
}

// RecordDTO is one live registration.
type RecordDTO struct {
	Kind         string         `json:"kind"`
	ResourceID   string         `json:"resource_id"`
	Owner        string         `json:"owner"`
	RegisteredAt time.Time      `json:"registered_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// PreviewDTO lists the conflicts registering a manifest would raise.
type PreviewDTO struct {
	Source    string        `json:"source,omitempty"`
	Owner     string        `json:"owner"`
	Conflicts []ConflictDTO `json:"conflicts"`
}

// TeardownDTO reports an UnregisterAll call.
type TeardownDTO struct {
	Owner   string `json:"owner"`
	Removed int    `json:"removed"`
}

// FromOutcome converts a manifest registration outcome.
func FromOutcome(source string, out registry.Outcome) OutcomeDTO {
	results := make([]ResultDTO, len(out.Results))
	for i, r := range out.Results {
		results[i] = ResultDTO{
			Kind:       r.Kind.String(),
			ResourceID: r.ResourceID,
			Action:     string(r.Action),
			Success:    r.Success,
			Message:    r.Message,
		}
	}
	errs := out.Errors
	if errs == nil {
		errs = []string{}
	}
	return OutcomeDTO{
		Source:  source,
		BatchID: out.BatchID,
		Owner:   out.Owner,
		Success: out.Success,
		Results: results,
		Errors:  errs,
	}
}

// FromConflict converts an audit entry.
func FromConflict(c registry.Conflict) ConflictDTO {
	return ConflictDTO{
		ID:            c.ID,
		Kind:          c.Kind.String(),
		ResourceID:    c.ResourceID,
		ExistingOwner: c.ExistingOwner,
		NewOwner:      c.NewOwner,
		Detail:        c.Detail,
		DetectedAt:    c.DetectedAt,
	}
}

// FromConflicts converts a list of audit entries; nil becomes empty.
func FromConflicts(cs []registry.Conflict) []ConflictDTO {
	dtos := make([]ConflictDTO, len(cs))
	for i, c := range cs {
		dtos[i] = FromConflict(c)
	}
	return dtos
}

// FromStats converts a stats snapshot.
func FromStats(s registry.Stats) StatsDTO {
	kinds := make(map[string]int, len(registry.Kinds()))
	for _, k := range registry.Kinds() {
		kinds[k.String()] = s.Kinds[k]
	}
	return StatsDTO{
		Kinds:          kinds,
		TotalResources: s.TotalResources,
		TotalConflicts: s.TotalConflicts,
		Owners:         s.Owners,
	}
}

// FromOwnerResources converts a ResourcesByOwner answer.
func FromOwnerResources(owner string, resources map[registry.Kind][]string) OwnerResourcesDTO {
	dto := OwnerResourcesDTO{Owner: owner, Resources: make(map[string][]string, len(resources))}
	for k, ids := range resources {
		dto.Resources[k.String()] = ids
		dto.Total += len(ids)
	}
	return dto
}

// FromRecord converts a live registration.
func FromRecord(r registry.Record) RecordDTO {
	return RecordDTO{
		Kind:         r.Kind.String(),
		ResourceID:   r.ResourceID,
		Owner:        r.Owner,
		RegisteredAt: r.RegisteredAt,
		Metadata:     r.Metadata,
	}
}

// FromRecords converts a list of registrations; nil becomes empty.
func FromRecords(rs []registry.Record) []RecordDTO {
	dtos := make([]RecordDTO, len(rs))
	for i, r := range rs {
		dtos[i] = FromRecord(r)
	}
	return dtos
}
