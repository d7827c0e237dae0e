package modelgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evalforge/evalforge/model"
)

// RedisCache is a Cache backend for sharing the model-call cache across
// engine processes, grounded on the teacher's use of a shared backing store
// (go-redis/v9) for anything that must survive/fan-out beyond one process.
// Entries are stored as JSON; expiry uses Redis's native TTL support
// instead of the lazy client-side check InMemoryCache performs.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache constructs a RedisCache. ttl <= 0 means entries never
// expire (spec §4.4 "Expiry is either absolute ... or 'never'").
func NewRedisCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: keyPrefix, ttl: ttl}
}

type redisCacheRecord struct {
	Output *model.Output `json:"output"`
	Scope  []string      `json:"scope,omitempty"`
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.Output, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var rec redisCacheRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	return rec.Output, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, out *model.Output) {
	c.SetScoped(ctx, key, out)
}

// SetScoped stores out tagged with scope labels for selective invalidation.
func (c *RedisCache) SetScoped(ctx context.Context, key string, out *model.Output, scope ...string) {
	rec := redisCacheRecord{Output: out, Scope: scope}
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.prefix+key, b, c.ttl).Err()
	for _, s := range scope {
		_ = c.client.SAdd(ctx, c.prefix+"scope:"+s, key).Err()
	}
}

// Invalidate implements Cache by deleting every key previously tagged with
// any of labels.
func (c *RedisCache) Invalidate(ctx context.Context, labels ...string) {
	for _, label := range labels {
		scopeKey := c.prefix + "scope:" + label
		keys, err := c.client.SMembers(ctx, scopeKey).Result()
		if err != nil {
			continue
		}
		for _, k := range keys {
			_ = c.client.Del(ctx, c.prefix+k).Err()
		}
		_ = c.client.Del(ctx, scopeKey).Err()
	}
}
