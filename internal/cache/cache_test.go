package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liminalvillage/integral-sub001/internal/cache"
	"github.com/liminalvillage/integral-sub001/pkg/config"
)

func TestMemoryWindow_EvictsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	w := cache.NewMemoryWindow(3)

	for _, v := range []float64{1, 2, 3, 4, 5} {
		require.NoError(t, w.Push(ctx, "node-a", v))
	}

	recent, err := w.Recent(ctx, "node-a", 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5}, recent)
}

func TestMemoryWindow_RecentCapsToRequestedCount(t *testing.T) {
	ctx := context.Background()
	w := cache.NewMemoryWindow(10)
	for _, v := range []float64{10, 20, 30} {
		require.NoError(t, w.Push(ctx, "k", v))
	}

	recent, err := w.Recent(ctx, "k", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 30}, recent)
}

func TestMemoryWindow_SeparatesKeys(t *testing.T) {
	ctx := context.Background()
	w := cache.NewMemoryWindow(5)
	require.NoError(t, w.Push(ctx, "a", 1))
	require.NoError(t, w.Push(ctx, "b", 2))

	recentA, err := w.Recent(ctx, "a", 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, recentA)
}

func TestFromConfig_FallsBackToMemoryWhenAddrEmpty(t *testing.T) {
	w, err := cache.FromConfig(context.Background(), config.CacheConfig{}, 8)
	require.NoError(t, err)
	_, ok := w.(*cache.MemoryWindow)
	assert.True(t, ok, "expected in-process fallback when no redis addr is configured")
}
