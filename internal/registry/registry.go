package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/arbiter/internal/cachemanager"
	"github.com/zjrosen/arbiter/internal/log"
	"github.com/zjrosen/arbiter/internal/pubsub"
	"github.com/zjrosen/arbiter/internal/tracing"
)

const defaultEventBuffer = 256

// Registry is the shared ownership table for extension resources. Construct
// one at process start and pass it to every caller. It is safe for
// concurrent use: mutations take an exclusive lock, queries a shared one.
type Registry struct {
	mu       sync.RWMutex
	store    *store
	audit    auditLog
	policies PolicyTable
	initial  PolicyTable

	now         func() time.Time
	newID       func() string
	tracer      trace.Tracer
	observers   []Observer
	ownerCache  cachemanager.CacheManager[string, map[Kind][]string]
	ownerReads  *cachemanager.ReadThroughCache[string, map[Kind][]string]
	eventBuffer int
	broker      *pubsub.Broker[Event]
}

// New creates an empty Registry using the default policy table unless
// overridden by options.
func New(opts ...Option) *Registry {
	r := &Registry{
		store:       newStore(),
		initial:     DefaultPolicies(),
		now:         time.Now,
		newID:       uuid.NewString,
		tracer:      noop.NewTracerProvider().Tracer("registry"),
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.policies = r.initial.Clone()
	r.broker = pubsub.NewBrokerWithBuffer[Event](r.eventBuffer)
	if r.ownerCache != nil {
		r.ownerReads = cachemanager.NewReadThroughCache(r.ownerCache, 0,
			func(_ context.Context, owner string) (map[Kind][]string, error) {
				return r.store.resourcesOf(owner), nil
			})
	}
	return r
}

// Close stops event delivery. The registry remains usable for queries and
// registrations; subscribers simply see their channels closed.
func (r *Registry) Close() {
	r.broker.Close()
}

// Get returns a copy of the record stored at (kind, id).
func (r *Registry) Get(kind Kind, id string) (Record, bool) {
	if !kind.Valid() {
		return Record{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.store.get(kind, id)
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Owner returns the current owner of (kind, id).
func (r *Registry) Owner(kind Kind, id string) (string, bool) {
	rec, ok := r.Get(kind, id)
	return rec.Owner, ok
}

// List returns every record of kind, sorted by resource id.
func (r *Registry) List(kind Kind) []Record {
	if !kind.Valid() {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.list(kind)
}

// Owners returns every owner holding at least one resource, sorted.
func (r *Registry) Owners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.ownerNames()
}

// Unregister removes (kind, id) if owner currently holds it. It returns
// false both when the resource is absent and when someone else owns it.
func (r *Registry) Unregister(kind Kind, id, owner string) bool {
	if !kind.Valid() {
		return false
	}

	r.mu.Lock()
	removed := r.store.remove(kind, id, owner)
	if removed {
		r.invalidateOwnersLocked()
	}
	r.mu.Unlock()

	if removed {
		r.emit([]Event{{Type: EventUnregistered, Kind: kind, ResourceID: id, Owner: owner}})
	}
	return removed
}

// UnregisterAll removes every resource owned by owner across all kinds and
// returns how many were removed. An owner with nothing registered yields 0.
func (r *Registry) UnregisterAll(ctx context.Context, owner string) int {
	_, span := r.tracer.Start(ctx, tracing.SpanUnregisterAll, trace.WithAttributes(
		attribute.String(tracing.AttrOwner, owner),
	))
	defer span.End()

	r.mu.Lock()
	removed := r.store.removeOwner(owner)
	if len(removed) > 0 {
		r.invalidateOwnersLocked()
	}
	r.mu.Unlock()

	var events []Event
	for _, k := range Kinds() {
		for _, id := range removed[k] {
			events = append(events, Event{Type: EventUnregistered, Kind: k, ResourceID: id, Owner: owner})
		}
	}
	r.emit(events)

	span.SetAttributes(attribute.Int(tracing.AttrRemoved, len(events)))
	if len(events) > 0 {
		log.Info(log.CatRegistry, "Owner torn down", "owner", owner, "removed", len(events))
	}
	return len(events)
}

// ResourcesByOwner returns the ids owner holds, grouped by kind and sorted.
// Kinds with no ids are omitted; an unknown owner yields an empty map.
func (r *Registry) ResourcesByOwner(owner string) map[Kind][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.ownerReads == nil {
		return r.store.resourcesOf(owner)
	}

	// Filling the cache under the read lock keeps a concurrent writer from
	// flushing between the computation and the Set.
	resources, _ := r.ownerReads.Get(context.Background(), owner)
	return cloneResources(resources)
}

// invalidateOwnersLocked drops cached owner lookups. The caller must hold
// the write lock.
func (r *Registry) invalidateOwnersLocked() {
	if r.ownerReads == nil {
		return
	}
	r.ownerReads.Invalidate(context.Background())
}

// Policies returns a copy of the active policy table.
func (r *Registry) Policies() PolicyTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies.Clone()
}

// PolicyFor returns the active policy for kind.
func (r *Registry) PolicyFor(kind Kind) Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[kind]
}

// UpdateConfig replaces the policy of every kind present in table. Kinds
// absent from table keep their current policy. The whole table is
// validated first and nothing changes if any value is unknown.
//
// Existing records are never re-resolved: a new policy only affects
// registrations made after the update.
func (r *Registry) UpdateConfig(table PolicyTable) error {
	if err := table.Validate(); err != nil {
		return fmt.Errorf("update config: %w", err)
	}

	r.mu.Lock()
	changed := make([]any, 0, len(table)*2)
	for _, k := range Kinds() {
		p, ok := table[k]
		if !ok || r.policies[k] == p {
			continue
		}
		changed = append(changed, k.String(), fmt.Sprintf("%s->%s", r.policies[k], p))
		r.policies[k] = p
	}
	r.mu.Unlock()

	if len(changed) > 0 {
		log.Info(log.CatConfig, "Merge policies updated", changed...)
	}
	return nil
}

// Reset clears every registration and the audit log and restores the
// policies the registry was constructed with. Intended for test harnesses.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store = newStore()
	r.audit.clear()
	r.policies = r.initial.Clone()
	r.invalidateOwnersLocked()
}

func cloneResources(in map[Kind][]string) map[Kind][]string {
	out := make(map[Kind][]string, len(in))
	for k, ids := range in {
		out[k] = slices.Clone(ids)
	}
	return out
}
