package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager struct {
	mock.Mock
}

func (m *mockCacheManager) Get(ctx context.Context, key string) ([]string, bool) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]string), args.Bool(1)
}

func (m *mockCacheManager) Set(ctx context.Context, key string, value []string, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockCacheManager) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCacheManager) Len() int {
	return m.Called().Int(0)
}

func TestReadThroughCache_Get_WithValueInCache(t *testing.T) {
	manager := &mockCacheManager{}
	manager.On("Get", mock.Anything, "appA").Return([]string{"/checkout"}, true).Once()

	calls := 0
	cache := NewReadThroughCache[string, []string](manager, time.Minute, func(ctx context.Context, key string) ([]string, error) {
		calls++
		return nil, nil
	})

	got, err := cache.Get(context.Background(), "appA")
	require.NoError(t, err)
	require.Equal(t, []string{"/checkout"}, got)
	require.Zero(t, calls)
	manager.AssertExpectations(t)
}

func TestReadThroughCache_Get_MissComputesAndStores(t *testing.T) {
	manager := &mockCacheManager{}
	manager.On("Get", mock.Anything, "appA").Return(nil, false).Once()
	manager.On("Set", mock.Anything, "appA", []string{"/cart"}, time.Minute).Once()

	cache := NewReadThroughCache[string, []string](manager, time.Minute, func(ctx context.Context, key string) ([]string, error) {
		require.Equal(t, "appA", key)
		return []string{"/cart"}, nil
	})

	got, err := cache.Get(context.Background(), "appA")
	require.NoError(t, err)
	require.Equal(t, []string{"/cart"}, got)
	manager.AssertExpectations(t)
}

func TestReadThroughCache_Get_ErrorIsNotCached(t *testing.T) {
	manager := &mockCacheManager{}
	manager.On("Get", mock.Anything, "appA").Return(nil, false).Once()

	boom := errors.New("boom")
	cache := NewReadThroughCache[string, []string](manager, time.Minute, func(ctx context.Context, key string) ([]string, error) {
		return nil, boom
	})

	_, err := cache.Get(context.Background(), "appA")
	require.ErrorIs(t, err, boom)
	manager.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	manager.AssertExpectations(t)
}

func TestReadThroughCache_Invalidate_Flushes(t *testing.T) {
	manager := &mockCacheManager{}
	manager.On("Flush", mock.Anything).Return(nil).Once()

	cache := NewReadThroughCache[string, []string](manager, time.Minute, func(ctx context.Context, key string) ([]string, error) {
		return nil, nil
	})

	cache.Invalidate(context.Background())
	manager.AssertExpectations(t)
}

func TestReadThroughCache_WithInMemoryManager(t *testing.T) {
	manager := NewInMemoryCacheManager[string, []string]("owner-routes", DefaultExpiration, DefaultCleanupInterval)

	calls := 0
	cache := NewReadThroughCache[string, []string](manager, 0, func(ctx context.Context, key string) ([]string, error) {
		calls++
		return []string{key + "/route"}, nil
	})

	for range 3 {
		got, err := cache.Get(context.Background(), "appA")
		require.NoError(t, err)
		require.Equal(t, []string{"appA/route"}, got)
	}
	require.Equal(t, 1, calls)

	cache.Invalidate(context.Background())
	_, err := cache.Get(context.Background(), "appA")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
