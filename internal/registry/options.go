package registry

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/arbiter/internal/cachemanager"
)

// Option configures a Registry.
type Option func(*Registry)

// WithPolicies overlays table on the default policies. The table is not
// validated here; a bad value surfaces as ErrUnknownPolicy the first time a
// conflict on that kind needs resolving.
func WithPolicies(table PolicyTable) Option {
	return func(r *Registry) {
		for k, p := range table {
			r.initial[k] = p
		}
	}
}

// WithClock replaces time.Now for registration and detection timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator used for conflict and batch ids.
func WithIDGenerator(next func() string) Option {
	return func(r *Registry) {
		if next != nil {
			r.newID = next
		}
	}
}

// WithMaxHistory bounds the audit log. Zero or less keeps every conflict.
func WithMaxHistory(n int) Option {
	return func(r *Registry) {
		r.audit.capacity = max(n, 0)
	}
}

// WithTracer sets the tracer used for manifest and teardown spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithObserver registers an observer that is called synchronously, outside
// the registry lock, for every event.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithOwnerCache caches ResourcesByOwner answers in cache until the next
// mutation.
func WithOwnerCache(cache cachemanager.CacheManager[string, map[Kind][]string]) Option {
	return func(r *Registry) {
		r.ownerCache = cache
	}
}

// WithEventBuffer sets the per-subscriber event buffer.
func WithEventBuffer(size int) Option {
	return func(r *Registry) {
		r.eventBuffer = size
	}
}
