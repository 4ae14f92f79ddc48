package limits

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

// MemoryLimiter keeps one token bucket per key in process. Buckets idle
// longer than the idle TTL are dropped by Run.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	l := &MemoryLimiter{
		limiters: make(map[string]*bucket),
		idleTTL:  defaultIdleTTL,
		now:      time.Now,
	}
	if policy.enabled() {
		l.rate = rate.Limit(float64(policy.Requests) / policy.Window.Seconds())
		l.burst = policy.Requests
		if ttl := 2 * policy.Window; ttl > l.idleTTL {
			l.idleTTL = ttl
		}
	} else {
		l.rate = rate.Inf
	}
	return l
}

func (l *MemoryLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	if l.rate == rate.Inf {
		return Decision{Allowed: true}, nil
	}
	now := l.now()
	lim := l.getLimiter(key, now)

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Limit: l.burst, RetryAfter: delay}, nil
	}
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: l.burst, Remaining: remaining}, nil
}

// Run evicts idle buckets every interval until ctx is cancelled.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.evictIdle(l.now())
		}
	}
}

func (l *MemoryLimiter) evictIdle(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for key, b := range l.limiters {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.limiters, key)
			evicted++
		}
	}
	return evicted
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
