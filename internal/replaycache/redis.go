package replaycache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared-store replay cache backing: EXISTS, SET with a
// TTL, GET, and SCAN+DEL for Clear. A second server instance shares this same
// store, so consumption is visible across instances.
//
// Read errors during IsUsed are treated as a cache miss — fail-open on
// store availability, never fail-open on consumption. If two instances
// race a write during an outage, the store itself (or a stricter
// deployment) must supply single-writer semantics; this is a documented
// limitation of the default configuration, not a guarantee this backing
// makes on its own.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client. Close closes that client too, so
// the caller must not close it separately or share it past the cache's
// lifetime.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// NewRedisCacheFromURL dials a client from a redis:// URL and returns a
// cache that owns it — Close will close the underlying connection.
func NewRedisCacheFromURL(ctx context.Context, rawURL, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisCache(client, prefix), nil
}

func (c *RedisCache) key(signature string) string {
	return c.prefix + signature
}

// IsUsed maps to EXISTS. A connection error is reported as "not used" —
// the caller may end up double-verifying, which is safe; the subsequent
// MarkUsed write is what actually enforces the invariant.
func (c *RedisCache) IsUsed(ctx context.Context, signature string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(signature)).Result()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

// MarkUsed maps to SETEX ttl json(meta).
func (c *RedisCache) MarkUsed(ctx context.Context, signature string, meta Meta, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(signature), payload, ttl).Err()
}

// GetMeta maps to GET.
func (c *RedisCache) GetMeta(ctx context.Context, signature string) (Meta, bool, error) {
	raw, err := c.client.Get(ctx, c.key(signature)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, false, err
	}
	return meta, true, nil
}

// Clear walks the prefix* keys with SCAN and then DELs them. Intended for
// tests and maintenance tooling, not the request path — the walk costs time
// proportional to keyspace size.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Close releases the underlying connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
