package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/railzwaylabs/bullion/internal/rate/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, time.Minute, zap.NewNop()), mr
}

func TestRedis_SetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, gen, ok := c.Get(ctx, "2025-01-02")
	assert.False(t, ok)
	assert.Zero(t, gen)

	day := &domain.Day{
		Date: "2025-01-02",
		Products: map[string][]domain.Snapshot{
			"gold": {{Timestamp: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), Values: map[string]float64{"22k": 6500}}},
		},
	}
	c.Set(ctx, "2025-01-02", gen, day)

	got, _, ok := c.Get(ctx, "2025-01-02")
	require.True(t, ok)
	assert.Equal(t, "2025-01-02", got.Date)
	assert.Equal(t, 6500.0, got.Products["gold"][0].Values["22k"])
}

func TestRedis_InvalidateDropsEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "2025-01-02", 0, &domain.Day{Date: "2025-01-02"})
	require.NoError(t, c.Invalidate(ctx))

	_, gen, ok := c.Get(ctx, "2025-01-02")
	assert.False(t, ok)
	assert.Equal(t, int64(1), gen)
}

func TestRedis_LoadRacingInvalidateIsNotServed(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// a reader misses, then rates are recorded before it stores its load
	_, gen, ok := c.Get(ctx, "2025-01-02")
	require.False(t, ok)
	require.NoError(t, c.Invalidate(ctx))
	c.Set(ctx, "2025-01-02", gen, &domain.Day{Date: "2025-01-02"})

	_, current, ok := c.Get(ctx, "2025-01-02")
	assert.False(t, ok)
	assert.Equal(t, gen+1, current)
}

func TestRedis_ExpiresEntries(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "2025-01-02", 0, &domain.Day{Date: "2025-01-02"})
	mr.FastForward(2 * time.Minute)

	_, _, ok := c.Get(ctx, "2025-01-02")
	assert.False(t, ok)
}

func TestRedis_UnavailableIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, gen, ok := c.Get(context.Background(), "2025-01-02")
	assert.False(t, ok)
	assert.Negative(t, gen)
}

func TestRedis_SetSkipsUnknownGeneration(t *testing.T) {
	c, mr := newTestCache(t)
	c.Set(context.Background(), "2025-01-02", -1, &domain.Day{Date: "2025-01-02"})
	assert.Empty(t, mr.Keys())
}
