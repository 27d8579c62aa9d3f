package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewLimiter(client, "unsubscribe", 5, time.Minute)
	fixed := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d should be allowed", i+1)
	}

	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "sixth hit should be limited")

	ok, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok, "other keys have their own budget")
}

func TestLimiterResetsNextWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewLimiter(client, "unsubscribe", 1, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "ip")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "ip")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiterSetsExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewLimiter(client, "unsubscribe", 3, time.Minute)

	_, err := l.Allow(context.Background(), "ip")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestLimiterFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	l := NewLimiter(client, "unsubscribe", 1, time.Minute)
	mr.Close()

	ok, err := l.Allow(context.Background(), "ip")
	assert.Error(t, err)
	assert.True(t, ok)
}
