package events

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache tracks processed event ids so at-least-once delivery does
// not re-run handler side effects. Seen marks the id and reports whether it
// was already present.
type IdempotencyCache interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// RedisIdempotencyCache marks event ids with SETNX and a TTL matching topic
// retention, so redelivered records are recognized across process restarts.
type RedisIdempotencyCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyCache(client *goredis.Client, ttl time.Duration) *RedisIdempotencyCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisIdempotencyCache{client: client, ttl: ttl}
}

func (c *RedisIdempotencyCache) Seen(ctx context.Context, eventID string) (bool, error) {
	set, err := c.client.SetNX(ctx, "payerhub:event:"+eventID, 1, c.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// MemoryIdempotencyCache is the in-process equivalent for tests and for
// deployments without Redis.
type MemoryIdempotencyCache struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryIdempotencyCache() *MemoryIdempotencyCache {
	return &MemoryIdempotencyCache{seen: make(map[string]struct{})}
}

func (c *MemoryIdempotencyCache) Seen(_ context.Context, eventID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[eventID]; ok {
		return true, nil
	}
	c.seen[eventID] = struct{}{}
	return false, nil
}
