package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const accessKeyPrefix = "access:"

func accessKey(projectID, userID uint) string {
	return fmt.Sprintf("%s%d:%d", accessKeyPrefix, projectID, userID)
}

func projectKeyPrefix(projectID uint) string {
	return fmt.Sprintf("%s%d:", accessKeyPrefix, projectID)
}

// AccessCache memoizes access decisions per (project, user). Every membership
// mutation must invalidate the affected entry.
type AccessCache interface {
	Get(projectID, userID uint) (*AccessResult, bool)
	Set(projectID, userID uint, res *AccessResult)
	Invalidate(projectID, userID uint)
	InvalidateProject(projectID uint)
	Stats() CacheStats
}

type CacheStats struct {
	Driver  string  `json:"driver"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

type cacheCounters struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (c *cacheCounters) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *cacheCounters) stats(driver string, size int) CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := CacheStats{Driver: driver, Hits: hits, Misses: misses, Size: size}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// NewAccessCache builds the cache selected by cfg.Cache.Driver. A redis cache
// that cannot be reached falls back to the in-memory one.
func NewAccessCache(cfg *config.Config) AccessCache {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	if cfg.Cache.Driver == "redis" {
		cache, err := NewRedisAccessCache(&cfg.Redis, ttl)
		if err == nil {
			logger.Infof("[AccessCache] Redis cache initialized at %s", cfg.Redis.Addr)
			return cache
		}
		logger.Warnf("[AccessCache] Redis unavailable, falling back to memory cache: %v", err)
	}
	return NewMemoryAccessCache(cfg.Cache.Size, ttl)
}

// MemoryAccessCache is a size-bounded LRU whose entries expire after the TTL.
type MemoryAccessCache struct {
	lru *expirable.LRU[string, AccessResult]
	cacheCounters
}

func NewMemoryAccessCache(size int, ttl time.Duration) *MemoryAccessCache {
	if size <= 0 {
		size = 4096
	}
	return &MemoryAccessCache{
		lru: expirable.NewLRU[string, AccessResult](size, nil, ttl),
	}
}

func (c *MemoryAccessCache) Get(projectID, userID uint) (*AccessResult, bool) {
	res, ok := c.lru.Get(accessKey(projectID, userID))
	c.record(ok)
	if !ok {
		return nil, false
	}
	return &res, true
}

func (c *MemoryAccessCache) Set(projectID, userID uint, res *AccessResult) {
	c.lru.Add(accessKey(projectID, userID), *res)
}

func (c *MemoryAccessCache) Invalidate(projectID, userID uint) {
	c.lru.Remove(accessKey(projectID, userID))
}

func (c *MemoryAccessCache) InvalidateProject(projectID uint) {
	prefix := projectKeyPrefix(projectID)
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

func (c *MemoryAccessCache) Stats() CacheStats {
	return c.stats("memory", c.lru.Len())
}

// RedisAccessCache shares access decisions between replicas.
type RedisAccessCache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	log     zerolog.Logger
	cacheCounters
}

func NewRedisAccessCache(cfg *config.RedisConfig, ttl time.Duration) (*RedisAccessCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisAccessCache(client, ttl), nil
}

func newRedisAccessCache(client *redis.Client, ttl time.Duration) *RedisAccessCache {
	return &RedisAccessCache{
		client:  client,
		ttl:     ttl,
		timeout: time.Second,
		log:     logger.Component("access_cache"),
	}
}

func (c *RedisAccessCache) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *RedisAccessCache) Get(projectID, userID uint) (*AccessResult, bool) {
	ctx, cancel := c.ctx()
	defer cancel()

	data, err := c.client.Get(ctx, accessKey(projectID, userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("access cache get failed")
		}
		c.record(false)
		return nil, false
	}

	var res AccessResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.record(false)
		return nil, false
	}
	c.record(true)
	return &res, true
}

func (c *RedisAccessCache) Set(projectID, userID uint, res *AccessResult) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	ctx, cancel := c.ctx()
	defer cancel()
	if err := c.client.Set(ctx, accessKey(projectID, userID), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("access cache set failed")
	}
}

func (c *RedisAccessCache) Invalidate(projectID, userID uint) {
	ctx, cancel := c.ctx()
	defer cancel()
	if err := c.client.Del(ctx, accessKey(projectID, userID)).Err(); err != nil {
		c.log.Warn().Err(err).Uint("project_id", projectID).Uint("user_id", userID).Msg("access cache invalidate failed")
	}
}

func (c *RedisAccessCache) InvalidateProject(projectID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iter := c.client.Scan(ctx, 0, projectKeyPrefix(projectID)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn().Err(err).Uint("project_id", projectID).Msg("access cache scan failed")
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.log.Warn().Err(err).Uint("project_id", projectID).Msg("access cache invalidate failed")
		}
	}
}

func (c *RedisAccessCache) Stats() CacheStats {
	ctx, cancel := c.ctx()
	defer cancel()

	size := 0
	iter := c.client.Scan(ctx, 0, accessKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		size++
	}
	return c.stats("redis", size)
}

func (c *RedisAccessCache) Close() error {
	return c.client.Close()
}
