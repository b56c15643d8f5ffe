// Package redis 基于 Redis 的缓存适配
package redis

import (
	"context"
	"time"

	"github.com/wyfcoding/riskassessment/internal/risk/domain"
	"github.com/wyfcoding/riskassessment/pkg/cache"
)

// CacheStore 以 JSON 编码存取缓存条目
type CacheStore struct {
	cache *cache.RedisCache
}

var _ domain.CacheStore = (*CacheStore)(nil)

// NewCacheStore 创建缓存适配
func NewCacheStore(c *cache.RedisCache) *CacheStore {
	return &CacheStore{cache: c}
}

func (s *CacheStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	return s.cache.GetJSON(ctx, key, dest)
}

func (s *CacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.cache.SetJSON(ctx, key, value, ttl)
}
