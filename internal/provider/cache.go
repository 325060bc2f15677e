package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores fetched results. Get reports false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool)
	Set(ctx context.Context, key string, r Result, ttl time.Duration)
}

type memoryEntry struct {
	result  Result
	expires time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.result, true
}

func (c *MemoryCache) Set(_ context.Context, key string, r Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{result: r, expires: c.now().Add(ttl)}
}

// RedisCache stores JSON-encoded results in Redis. Redis failures are
// logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisCache connects to redisURL and pings it.
func NewRedisCache(ctx context.Context, redisURL string, log *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client, log: log}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return Result{}, false
	}
	if err != nil {
		c.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return Result{}, false
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		c.log.Warn("redis value undecodable", zap.String("key", key), zap.Error(err))
		return Result{}, false
	}
	return r, true
}

func (c *RedisCache) Set(ctx context.Context, key string, r Result, ttl time.Duration) {
	raw, err := json.Marshal(r)
	if err != nil {
		c.log.Warn("failed to encode cache value", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NewCache returns a Redis cache when redisURL is set and reachable, and
// the in-process cache otherwise.
func NewCache(ctx context.Context, redisURL string, log *zap.Logger) Cache {
	if redisURL == "" {
		log.Debug("using in-memory provider cache")
		return NewMemoryCache()
	}
	rc, err := NewRedisCache(ctx, redisURL, log)
	if err != nil {
		log.Warn("redis unavailable, falling back to in-memory cache", zap.Error(err))
		return NewMemoryCache()
	}
	log.Info("using redis provider cache")
	return rc
}

// Cached wraps a provider so FetchExperiment results are reused for ttl.
// Entries are scoped to the API key the provider was built with.
type Cached struct {
	Provider
	apiKey string
	cache  Cache
	ttl    time.Duration
	log    *zap.Logger
}

func NewCached(p Provider, apiKey string, c Cache, ttl time.Duration, log *zap.Logger) *Cached {
	return &Cached{Provider: p, apiKey: apiKey, cache: c, ttl: ttl, log: log}
}

// CacheKey is the key a provider's experiment results are stored under:
// provider:keyhash:id:results, where keyhash is a short digest of apiKey.
func CacheKey(provider, apiKey, id string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return provider + ":" + hex.EncodeToString(sum[:6]) + ":" + id + ":results"
}

func (c *Cached) FetchExperiment(ctx context.Context, id string) (Result, error) {
	key := CacheKey(c.Name(), c.apiKey, id)
	if r, ok := c.cache.Get(ctx, key); ok {
		c.log.Debug("provider cache hit", zap.String("key", key))
		return r, nil
	}
	c.log.Debug("provider cache miss", zap.String("key", key))

	r, err := c.Provider.FetchExperiment(ctx, id)
	if err != nil {
		return Result{}, err
	}
	c.cache.Set(ctx, key, r, c.ttl)
	return r, nil
}
