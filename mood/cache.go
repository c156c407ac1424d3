package mood

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/safetycore/internal/cache"
)

// Cache 分类结果缓存
type Cache interface {
	Get(ctx context.Context, key string) (Analysis, bool)
	Set(ctx context.Context, key string, a Analysis)
}

// RedisCache 基于 Redis 的分类缓存，读写失败只记录日志
type RedisCache struct {
	manager *cache.Manager
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(manager *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{
		manager: manager,
		ttl:     ttl,
		logger:  logger.With(zap.String("component", "mood_cache")),
	}
}

// Get 读取缓存
func (c *RedisCache) Get(ctx context.Context, key string) (Analysis, bool) {
	var a Analysis
	if err := c.manager.GetJSON(ctx, key, &a); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("mood cache read failed", zap.Error(err))
		}
		return Analysis{}, false
	}
	return a, true
}

// Set 写入缓存
func (c *RedisCache) Set(ctx context.Context, key string, a Analysis) {
	if err := c.manager.SetJSON(ctx, key, a, c.ttl); err != nil {
		c.logger.Warn("mood cache write failed", zap.Error(err))
	}
}
