// Package limits provides per-key request throttling for the public write
// and Slack endpoints.
package limits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/usage_reports/backend/internal/config"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// Policy allows Requests per Window for each key.
type Policy struct {
	Requests int
	Window   time.Duration
}

func PolicyFromConfig(cfg config.RateLimitConfig) Policy {
	return Policy{Requests: cfg.Requests, Window: cfg.Window}
}

func (p Policy) enabled() bool {
	return p.Requests > 0 && p.Window > 0
}

// Decision reports the outcome of one Allow call. RetryAfter is set only
// when the request was rejected.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Err maps a rejected decision to ErrLimitExceeded.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrLimitExceeded
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// New picks the store named by cfg.Backend. The memory store is returned
// unstarted; the caller owns its Run loop.
func New(cfg config.RateLimitConfig, client *redis.Client) (Limiter, *MemoryLimiter) {
	policy := PolicyFromConfig(cfg)
	if strings.EqualFold(cfg.Backend, "redis") && client != nil {
		return NewRateLimiter(client, policy), nil
	}
	mem := NewMemoryLimiter(policy)
	return mem, mem
}

// RateLimiter is a redis fixed-window counter shared by every replica.
type RateLimiter struct {
	client *redis.Client
	policy Policy
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, policy Policy) *RateLimiter {
	return &RateLimiter{client: client, policy: policy, now: time.Now}
}

func (l *RateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil || l.client == nil || !l.policy.enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.countCheck(ctx, fmt.Sprintf("rl:%s", key))
}

func (l *RateLimiter) countCheck(ctx context.Context, key string) (Decision, error) {
	window := l.policy.Window
	now := l.now().UTC()
	bucket := now.UnixNano() / int64(window)
	redisKey := fmt.Sprintf("%s:%d", key, bucket)

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, err
	}
	if cnt == 1 {
		l.client.Expire(ctx, redisKey, window)
	}

	limit := l.policy.Requests
	d := Decision{Allowed: int(cnt) <= limit, Limit: limit, Remaining: limit - int(cnt)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		windowEnd := time.Unix(0, (bucket+1)*int64(window))
		d.RetryAfter = windowEnd.Sub(now)
	}
	return d, nil
}
