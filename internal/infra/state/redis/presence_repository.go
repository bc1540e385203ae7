package redisstate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisPresenceRepository 是 PresenceRepository 接口的 Redis 实现。
// 每个房间一个 Set，成员为在线用户的 ID。集合带 TTL，
// 即使进程异常退出也不会永久残留。
type RedisPresenceRepository struct {
	client    *redis.Client // 依赖 Redis 客户端
	keyPrefix string        // Redis key 前缀，方便多环境隔离
}

// NewRedisPresenceRepository 创建 RedisPresenceRepository 实例
func NewRedisPresenceRepository(client *redis.Client, keyPrefix string) *RedisPresenceRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisPresenceRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "eb:" // 默认前缀 "eb:" (earnbuddy)
	}
	return &RedisPresenceRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisPresenceRepository) roomPresenceKey(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:online", r.keyPrefix, roomID)
}

func (r *RedisPresenceRepository) presenceIndexKey() string {
	return r.keyPrefix + "presence:rooms"
}

// MarkOnline 将用户加入房间的在线集合，并刷新过期时间。
// 同时把房间 ID 记入索引集合，供 SweepEmpty 遍历。
func (r *RedisPresenceRepository) MarkOnline(ctx context.Context, roomID, userID uint, ttl time.Duration) error {
	key := r.roomPresenceKey(roomID)
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, r.presenceIndexKey(), roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: mark user %d online in room %d: %w", userID, roomID, err)
	}
	return nil
}

// MarkOffline 将用户从房间的在线集合移除。
func (r *RedisPresenceRepository) MarkOffline(ctx context.Context, roomID, userID uint) error {
	key := r.roomPresenceKey(roomID)
	if err := r.client.SRem(ctx, key, userID).Err(); err != nil {
		return fmt.Errorf("redis: mark user %d offline in room %d: %w", userID, roomID, err)
	}
	return nil
}

// OnlineMembers 返回房间当前在线的用户 ID 列表。
func (r *RedisPresenceRepository) OnlineMembers(ctx context.Context, roomID uint) ([]uint, error) {
	key := r.roomPresenceKey(roomID)
	raw, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list online members for room %d from %s: %w", roomID, key, err)
	}
	ids := make([]uint, 0, len(raw))
	for _, s := range raw {
		id, parseErr := strconv.ParseUint(s, 10, 64)
		if parseErr != nil {
			// 脏数据只记日志，不让单个坏条目拖垮整个查询
			logrus.WithField("value", s).Warn("redis: skipping non-numeric presence member")
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// SweepEmpty 遍历索引集合，删除已经没有在线成员的房间集合。
func (r *RedisPresenceRepository) SweepEmpty(ctx context.Context) (int, error) {
	indexKey := r.presenceIndexKey()
	roomIDs, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: list presence index from %s: %w", indexKey, err)
	}

	cleaned := 0
	for _, s := range roomIDs {
		id, parseErr := strconv.ParseUint(s, 10, 64)
		if parseErr != nil {
			r.client.SRem(ctx, indexKey, s)
			continue
		}
		key := r.roomPresenceKey(uint(id))
		count, cardErr := r.client.SCard(ctx, key).Result()
		if cardErr != nil {
			return cleaned, fmt.Errorf("redis: scard %s: %w", key, cardErr)
		}
		if count == 0 {
			pipe := r.client.Pipeline()
			pipe.Del(ctx, key)
			pipe.SRem(ctx, indexKey, s)
			if _, execErr := pipe.Exec(ctx); execErr != nil {
				return cleaned, fmt.Errorf("redis: sweep room %s: %w", s, execErr)
			}
			cleaned++
		}
	}
	return cleaned, nil
}
