package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/pkg/cache"
)

func TestLRUMarkSeen(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLRU(2)

	dup, err := c.MarkSeen(ctx, "a")
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = c.MarkSeen(ctx, "a")
	require.NoError(t, err)
	require.True(t, dup)

	require.Equal(t, 1, c.Size())
}

func TestLRUEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLRU(2)

	_, _ = c.MarkSeen(ctx, "a")
	_, _ = c.MarkSeen(ctx, "b")
	_, _ = c.MarkSeen(ctx, "c") // evicts "a"

	require.Equal(t, 2, c.Size())

	dup, err := c.MarkSeen(ctx, "a")
	require.NoError(t, err)
	require.False(t, dup, "a should have been evicted and re-added as new")
}

func TestNewDefaultsToMemory(t *testing.T) {
	c, err := cache.New("", "", 10)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.(*cache.LRU)
	require.True(t, ok)
}

func TestNewRedisWithoutURLFallsBackToMemory(t *testing.T) {
	c, err := cache.New("redis", "", 10)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.(*cache.LRU)
	require.True(t, ok, "empty redis URL should fall back to the in-process cache")
}
