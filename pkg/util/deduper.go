package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{
		rdb: rdb,
		ttl: ttl,
	}
}

// NewDeduperWithLogger creates a deduper with logger support
func NewDeduperWithLogger(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire a dedup lock for a given key.
// Returns true if this is the FIRST time processing, false for a duplicate.
func (d *Deduper) AcquireOnce(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("dedup:%s", key)

	ok, err := d.rdb.SetNX(ctx, redisKey, 1, d.ttl).Result()
	if err != nil {
		// Redis 挂了？为了安全：当 redis 不可用时，不阻止处理，返回 true
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("dedup_key", redisKey),
		)
	}

	return ok
}

// Release drops a previously acquired dedup key so the event can be retried.
// 调用方在拿到 key 之后处理失败时必须释放，否则重试会被当成重复直接吞掉
func (d *Deduper) Release(ctx context.Context, key string) {
	redisKey := fmt.Sprintf("dedup:%s", key)

	if err := d.rdb.Del(ctx, redisKey).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
