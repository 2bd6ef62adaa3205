package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"marketchat/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisService(t *testing.T) *RedisService {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL is not set, skipping test")
	}
	client, err := database.NewRedisConnection(url)
	if err != nil {
		t.Skipf("Redis is not available, skipping test: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisService(client)
}

func TestRedisPresence(t *testing.T) {
	svc := newTestRedisService(t)
	ctx := context.Background()
	userID := fmt.Sprintf("presence-test-%d", time.Now().UnixNano())

	require.NoError(t, svc.SetUserOnline(ctx, userID))
	online, err := svc.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.True(t, online)

	seen, ok, err := svc.LastSeen(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), seen, 5*time.Second)

	require.NoError(t, svc.SetUserOffline(ctx, userID))
	online, err = svc.IsUserOnline(ctx, userID)
	require.NoError(t, err)
	assert.False(t, online)

	_, ok, err = svc.LastSeen(ctx, "never-seen-"+userID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCheckRateLimit(t *testing.T) {
	svc := newTestRedisService(t)
	ctx := context.Background()
	key := fmt.Sprintf("rate_limit:test:%d", time.Now().UnixNano())

	for i := 0; i < 3; i++ {
		allowed, err := svc.CheckRateLimit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d", i)
	}

	allowed, err := svc.CheckRateLimit(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}
