// Package flags provides feature flag support for opt-in subsystems.
// Flags are read-only after initialization and unknown flags read as off.
package flags

import (
	"maps"
	"slices"
	"strings"

	"github.com/zjrosen/arbiter/internal/log"
)

// Flag name constants for type-safe flag access.
const (
	// FlagJournal archives every detected conflict to the SQLite journal.
	FlagJournal = "journal"

	// FlagPolicyHotReload reloads merge policies when the config file changes
	// while `arbiter serve` is running.
	FlagPolicyHotReload = "policy-hot-reload"

	// FlagOwnerCache caches ResourcesByOwner answers until the next mutation.
	FlagOwnerCache = "owner-cache"
)

// Known lists every flag arbiter reads, sorted.
func Known() []string {
	return []string{FlagJournal, FlagOwnerCache, FlagPolicyHotReload}
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. Names are matched
// case-insensitively and "_" is accepted for "-". A nil map disables
// every flag. Unrecognized names are kept but logged, since they are
// usually typos in the config file.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	for name, on := range flags {
		r.flags[normalize(name)] = on
	}

	if unknown := r.Unknown(); len(unknown) > 0 {
		log.Warn(log.CatConfig, "Unrecognized feature flags", "flags", strings.Join(unknown, ","))
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// Enabled returns true if the named flag is enabled.
// Returns false for unknown flags and on a nil registry.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[normalize(name)]
}

// All returns a copy of all flags (for debugging/logging).
// Returns an empty map if the registry is nil.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return make(map[string]bool)
	}
	return maps.Clone(r.flags)
}

// Unknown returns the configured names that are not in Known, sorted.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	var out []string
	for name := range r.flags {
		if !slices.Contains(Known(), name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
