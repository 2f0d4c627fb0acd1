package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"learnmate_backend/internal/model"
	"sync"

	"github.com/go-redis/redis/v8"
)

// ProgressCache 进度本地缓存。远端不可达时作为回退数据源，
// 远端成功后用权威数据整体覆盖。
type ProgressCache interface {
	Get(ctx context.Context, userKey, scopeKey string) (*model.ProgressRecord, error)
	Put(ctx context.Context, userKey string, record *model.ProgressRecord) error
}

func progressKey(userKey, scopeKey string) string {
	return fmt.Sprintf("progress:%s:%s", userKey, scopeKey)
}

// RedisProgressCache 基于 Redis 的缓存实现，不设过期时间：
// 缓存是同步失败时的唯一副本，淘汰即丢数据。
type RedisProgressCache struct {
	Redis *redis.Client
}

func NewRedisProgressCache(rdb *redis.Client) *RedisProgressCache {
	return &RedisProgressCache{Redis: rdb}
}

func (c *RedisProgressCache) Get(ctx context.Context, userKey, scopeKey string) (*model.ProgressRecord, error) {
	data, err := c.Redis.Get(ctx, progressKey(userKey, scopeKey)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record model.ProgressRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *RedisProgressCache) Put(ctx context.Context, userKey string, record *model.ProgressRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.Redis.Set(ctx, progressKey(userKey, record.ScopeKey), data, 0).Err()
}

// MemoryProgressCache 进程内缓存，Redis 未配置时使用
type MemoryProgressCache struct {
	mu      sync.RWMutex
	records map[string]*model.ProgressRecord
}

func NewMemoryProgressCache() *MemoryProgressCache {
	return &MemoryProgressCache{records: make(map[string]*model.ProgressRecord)}
}

func (c *MemoryProgressCache) Get(ctx context.Context, userKey, scopeKey string) (*model.ProgressRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[progressKey(userKey, scopeKey)]
	if !ok {
		return nil, nil
	}
	return record.Clone(), nil
}

func (c *MemoryProgressCache) Put(ctx context.Context, userKey string, record *model.ProgressRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[progressKey(userKey, record.ScopeKey)] = record.Clone()
	return nil
}
