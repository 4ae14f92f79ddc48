// Package cache replays responses of save requests that carry an
// Idempotency-Key header.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "idem:"
	lockPrefix = "idem:lock:"
	lockTTL    = 30 * time.Second
)

// Response is the stored outcome of the first request with a key.
type Response struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyCache stores serialized responses keyed by request id. A nil
// cache or client makes every call a no-op.
type IdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyCache(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

func (c *IdempotencyCache) enabled(key string) bool {
	return c != nil && c.client != nil && key != ""
}

func (c *IdempotencyCache) Get(ctx context.Context, key string) (Response, bool) {
	if !c.enabled(key) {
		return Response{}, false
	}
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil || resp.Status == 0 {
		return Response{}, false
	}
	return resp, true
}

// Set stores only successful responses so a failed save can be retried
// with the same key.
func (c *IdempotencyCache) Set(ctx context.Context, key string, resp Response) {
	if !c.enabled(key) || resp.Status >= 300 || len(resp.Body) == 0 {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.client.Set(ctx, keyPrefix+key, data, c.ttl)
	c.client.Del(ctx, lockPrefix+key)
}

// Reserve claims a key while its first request is in flight. It reports
// false when another request already holds the claim.
func (c *IdempotencyCache) Reserve(ctx context.Context, key string) (bool, error) {
	if !c.enabled(key) {
		return true, nil
	}
	return c.client.SetNX(ctx, lockPrefix+key, "1", lockTTL).Result()
}

// Release drops an in-flight claim without storing a response.
func (c *IdempotencyCache) Release(ctx context.Context, key string) {
	if !c.enabled(key) {
		return
	}
	c.client.Del(ctx, lockPrefix+key)
}
