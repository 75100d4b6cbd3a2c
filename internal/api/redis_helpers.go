package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRateCounter 是计数器所需的最小 Redis 接口。
type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// KVStore 是登录限速、失败锁定与刷新令牌黑名单所用的 Redis 子集。
// *redis.Client 与 redis.UniversalClient 均满足该接口。
type KVStore interface {
	redisRateCounter
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// incrWithTTL 递增计数器，首次创建时设置过期时间。
// 设置过期失败时返回错误，调用方按 Redis 不可用处理。
func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 && ttl > 0 {
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count, nil
}

// dailyUploadKey 按 UTC 日期划分每个用户的上传计数。
func dailyUploadKey(userID uint, now time.Time) string {
	return "upload:daily:" + strconv.FormatUint(uint64(userID), 10) + ":" + now.UTC().Format("20060102")
}
