package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"office-realtime/internal/database"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey  = "realtime:online_users"
	presencePrefix  = "realtime:presence:"
	accessPrefix    = "realtime:acl:"
	rateLimitPrefix = "realtime:rate:"
)

// markOffline decrements the connection counter of a user and drops the user
// from the online set when the last connection is gone.
var markOffline = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if n <= 0 then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[1])
  return 0
end
return n
`)

// refreshOnline extends a user's counter, restoring it from the local
// connection count when it expired while connections were still open.
var refreshOnline = redis.NewScript(`
if redis.call('EXPIRE', KEYS[1], ARGV[1]) == 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[1])
end
redis.call('SADD', KEYS[2], ARGV[3])
return 1
`)

type RedisService struct {
	client      *database.RedisClient
	presenceTTL time.Duration
}

func NewRedisService(client *database.RedisClient, presenceTTL time.Duration) *RedisService {
	if presenceTTL <= 0 {
		presenceTTL = 3 * time.Minute
	}
	return &RedisService{
		client:      client,
		presenceTTL: presenceTTL,
	}
}

// =============================================================================
// Presence
// =============================================================================

// MarkOnline counts one more live connection for userID. The counter is the
// source of truth; it expires unless RefreshOnline keeps it alive, so users of
// a crashed instance go offline after the presence TTL. The online set only
// indexes candidates for GetOnlineUsers.
func (r *RedisService) MarkOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().TxPipeline()
	pipe.Incr(ctx, presencePrefix+userID)
	pipe.Expire(ctx, presencePrefix+userID, r.presenceTTL)
	pipe.SAdd(ctx, onlineUsersKey, userID)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to set user online", "userID", userID, "error", err)
		return err
	}

	slog.Debug("User set to online", "userID", userID)
	return nil
}

func (r *RedisService) MarkOffline(ctx context.Context, userID string) error {
	remaining, err := markOffline.Run(ctx, r.client.GetClient(),
		[]string{presencePrefix + userID, onlineUsersKey}, userID).Int64()
	if err != nil {
		slog.Error("Failed to set user offline", "userID", userID, "error", err)
		return err
	}

	slog.Debug("User connection released", "userID", userID, "remaining", remaining)
	return nil
}

// RefreshOnline extends the counters of the users connected to this
// instance. counts maps each user to its local connection count.
func (r *RedisService) RefreshOnline(ctx context.Context, counts map[string]int) error {
	ttl := int64(r.presenceTTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}

	pipe := r.client.GetClient().Pipeline()
	for userID, n := range counts {
		refreshOnline.Eval(ctx, pipe, []string{presencePrefix + userID, onlineUsersKey}, ttl, n, userID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to refresh presence", "users", len(counts), "error", err)
		return err
	}
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.ConnectionCount(ctx, userID)
	return n > 0, err
}

// GetOnlineUsers returns the users with a live counter and prunes index
// entries whose counter has expired.
func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	client := r.client.GetClient()
	candidates, err := client.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(candidates))
	for i, userID := range candidates {
		keys[i] = presencePrefix + userID
	}
	counts, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	online := make([]string, 0, len(candidates))
	var stale []any
	for i, userID := range candidates {
		if raw, ok := counts[i].(string); ok {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
				online = append(online, userID)
				continue
			}
		}
		stale = append(stale, userID)
	}
	if len(stale) > 0 {
		if err := client.SRem(ctx, onlineUsersKey, stale...).Err(); err != nil {
			slog.Warn("Failed to prune online users", "count", len(stale), "error", err)
		}
	}
	return online, nil
}

// ConnectionCount is the number of live connections of userID across all
// instances.
func (r *RedisService) ConnectionCount(ctx context.Context, userID string) (int64, error) {
	n, err := r.client.GetClient().Get(ctx, presencePrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// =============================================================================
// Access cache
// =============================================================================

func accessKey(userID, entityClass, entityID string) string {
	return fmt.Sprintf("%s%s:%s:%s", accessPrefix, userID, entityClass, entityID)
}

func (r *RedisService) GetAccess(ctx context.Context, userID, entityClass, entityID string) (allowed, found bool, err error) {
	val, err := r.client.GetClient().Get(ctx, accessKey(userID, entityClass, entityID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (r *RedisService) SetAccess(ctx context.Context, userID, entityClass, entityID string, allowed bool, ttl time.Duration) error {
	val := "0"
	if allowed {
		val = "1"
	}
	return r.client.GetClient().Set(ctx, accessKey(userID, entityClass, entityID), val, ttl).Err()
}

// InvalidateAccess drops every cached decision of userID.
func (r *RedisService) InvalidateAccess(ctx context.Context, userID string) error {
	client := r.client.GetClient()
	iter := client.Scan(ctx, 0, accessPrefix+userID+":*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return client.Del(ctx, keys...).Err()
}

// =============================================================================
// Rate limiting
// =============================================================================

// CheckRateLimit records one hit for key in a sliding window and reports
// whether the hit stays within limit.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	key = rateLimitPrefix + key
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return count.Val() < int64(limit), nil
}

// =============================================================================
// PubSub Operations
// =============================================================================

func (r *RedisService) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.GetClient().Publish(ctx, channel, payload).Err(); err != nil {
		slog.Error("Failed to publish", "channel", channel, "error", err)
		return err
	}
	return nil
}

func (r *RedisService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	pubsub := r.client.GetClient().Subscribe(ctx, channels...)
	slog.Debug("Subscribed to channels", "channels", channels)
	return pubsub
}

func (r *RedisService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}
