package timeout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex 基于 Redis ZSET 的截止时间索引
//
// member = sagaID，score = 截止时间的毫秒时间戳；
// 范围查询用 ZRANGEBYSCORE (-inf, now]，移除用 ZREM。
type RedisIndex struct {
	client redis.UniversalClient
	key    string
}

// NewRedisIndex 创建 Redis 索引
//
// 参数：
//   - client: redis 客户端
//   - key: ZSET 键名（空字符串使用默认 ordersaga:deadlines）
func NewRedisIndex(client redis.UniversalClient, key string) *RedisIndex {
	if key == "" {
		key = "ordersaga:deadlines"
	}
	return &RedisIndex{client: client, key: key}
}

// Add 注册截止时间（ZADD，重复注册覆盖 score）
func (i *RedisIndex) Add(ctx context.Context, sagaID string, deadline time.Time) error {
	err := i.client.ZAdd(ctx, i.key, redis.Z{
		Score:  float64(deadline.UnixMilli()),
		Member: sagaID,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd deadline: %w", err)
	}
	return nil
}

// Due 返回已到期的 sagaID（ZRANGEBYSCORE，按截止时间升序）
func (i *RedisIndex) Due(ctx context.Context, now time.Time) ([]string, error) {
	members, err := i.client.ZRangeByScore(ctx, i.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore deadlines: %w", err)
	}
	return members, nil
}

// Remove 移除若干 sagaID（ZREM）
func (i *RedisIndex) Remove(ctx context.Context, sagaIDs ...string) error {
	if len(sagaIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(sagaIDs))
	for n, sagaID := range sagaIDs {
		members[n] = sagaID
	}
	if err := i.client.ZRem(ctx, i.key, members...).Err(); err != nil {
		return fmt.Errorf("zrem deadlines: %w", err)
	}
	return nil
}
