package cachemanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ownerKey string

type ownedRoutes struct {
	Owner  string
	Routes []string
}

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	})
}

func TestInMemoryCacheManager_GetExistingValue_StructType(t *testing.T) {
	cache := NewInMemoryCacheManager[ownerKey, ownedRoutes]("owner-routes", DefaultExpiration, DefaultCleanupInterval)
	want := ownedRoutes{Owner: "appA", Routes: []string{"/checkout"}}
	cache.Set(context.Background(), "appA", want, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "appA")
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestInMemoryCacheManager_GetWithNoExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("owner-routes", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "appA")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithExistingInvalidValueType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("owner-routes", DefaultExpiration, DefaultCleanupInterval)

	cache.cache.Set("appA", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "appA")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_SetZeroTTLUsesDefault(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("owner-routes", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "appA", "/checkout", 0)

	got, ok := cache.Get(context.Background(), "appA")
	require.True(t, ok)
	require.Equal(t, "/checkout", got)
}

func TestInMemoryCacheManager_DeleteWithNoKeysDoesNothing(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("owner-routes", DefaultExpiration, DefaultCleanupInterval)

	require.NoError(t, cache.Delete(context.Background()))
}

func TestInMemoryCacheManager_DeleteExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("owner-routes", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "appA", "/checkout", DefaultExpiration)
	cache.Set(context.Background(), "appB", "/cart", DefaultExpiration)

	require.NoError(t, cache.Delete(context.Background(), "appA"))

	_, ok := cache.Get(context.Background(), "appA")
	require.False(t, ok)
	got, ok := cache.Get(context.Background(), "appB")
	require.True(t, ok)
	require.Equal(t, "/cart", got)
	require.Equal(t, 1, cache.Len())
}

func TestInMemoryCacheManager_Flush(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("owner-routes", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "appA", "/checkout", DefaultExpiration)
	cache.Set(context.Background(), "appB", "/cart", DefaultExpiration)
	require.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Flush(context.Background()))

	_, ok := cache.Get(context.Background(), "appA")
	require.False(t, ok)
	require.Equal(t, 0, cache.Len())
}
