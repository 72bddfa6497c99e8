package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"office-realtime/internal/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisService(t *testing.T, ttl time.Duration) (*RedisService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedisService(database.NewRedisClient(client, logger), ttl), mr
}

func TestPresenceExpiresWithoutHeartbeat(t *testing.T) {
	svc, mr := newMiniRedisService(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.MarkOnline(ctx, "u1"))
	online, err := svc.IsUserOnline(ctx, "u1")
	require.NoError(t, err)
	require.True(t, online)

	// The instance holding u1 dies without MarkOffline.
	mr.FastForward(2 * time.Hour)

	online, err = svc.IsUserOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)

	users, err := svc.GetOnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.False(t, mr.Exists(onlineUsersKey), "stale index entry pruned")
}

func TestPresenceHeartbeatKeepsLongConnections(t *testing.T) {
	svc, mr := newMiniRedisService(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.MarkOnline(ctx, "u1"))
	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Minute)
		require.NoError(t, svc.RefreshOnline(ctx, map[string]int{"u1": 1}))
	}

	require.NoError(t, svc.MarkOnline(ctx, "u1"))
	n, err := svc.ConnectionCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, svc.MarkOffline(ctx, "u1"))
	online, err := svc.IsUserOnline(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, online, "second connection still open")

	users, err := svc.GetOnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestRefreshRestoresExpiredCounter(t *testing.T) {
	svc, mr := newMiniRedisService(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.MarkOnline(ctx, "u1"))
	mr.FastForward(2 * time.Hour)

	require.NoError(t, svc.RefreshOnline(ctx, map[string]int{"u1": 2, "u2": 1}))

	n, err := svc.ConnectionCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL(presencePrefix+"u1"))

	users, err := svc.GetOnlineUsers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)
}

func TestRateLimitWindow(t *testing.T) {
	svc, _ := newMiniRedisService(t, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := svc.CheckRateLimit(ctx, "ip:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := svc.CheckRateLimit(ctx, "ip:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}
