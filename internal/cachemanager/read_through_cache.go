package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache answers lookups from the cache and falls back to fn on a
// miss, storing what fn returns.
type ReadThroughCache[K comparable, V any] struct {
	cache CacheManager[K, V]
	fn    func(ctx context.Context, key K) (V, error)
	ttl   time.Duration
}

func NewReadThroughCache[K comparable, V any](
	cache CacheManager[K, V],
	ttl time.Duration,
	fn func(ctx context.Context, key K) (V, error),
) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{
		cache: cache,
		fn:    fn,
		ttl:   ttl,
	}
}

// Get returns the cached value for key, computing and caching it on a miss.
// Errors from fn are returned without caching.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, key)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, r.ttl)

	return value, nil
}

// Invalidate drops every cached value.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context) {
	_ = r.cache.Flush(ctx)
}
