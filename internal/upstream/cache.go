package upstream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"prospector/internal/metrics"
)

// Cache stores raw provider answers keyed by request.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]cacheEntry
}

type cacheEntry struct {
	val     []byte
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now, data: map[string]cacheEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.data, key)
		return nil, false
	}
	return e.val, true
}

func (c *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{val: append([]byte(nil), val...), expires: c.now().Add(ttl)}
}

// RedisCache shares cached answers across API instances.
type RedisCache struct {
	Client *redis.Client
	Prefix string
}

func NewRedisCache(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{Client: redis.NewClient(opt), Prefix: "prospector:cache:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	_ = c.Client.Set(ctx, c.Prefix+key, val, ttl).Err()
}

// cached returns the cached value for key, or calls fetch and stores its
// result. Errors are never cached.
func cached[T any](ctx context.Context, c Cache, ttl time.Duration, service, key string, fetch func() (T, error)) (T, error) {
	var zero T
	if c == nil || ttl <= 0 {
		return fetch()
	}
	if b, ok := c.Get(ctx, service+":"+key); ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			metrics.CacheLookups.WithLabelValues(service, "hit").Inc()
			return v, nil
		}
	}
	metrics.CacheLookups.WithLabelValues(service, "miss").Inc()
	v, err := fetch()
	if err != nil {
		return zero, err
	}
	if b, err := json.Marshal(v); err == nil {
		c.Set(ctx, service+":"+key, b, ttl)
	}
	return v, nil
}
