package health

import (
	"context"
	"maps"
	"sync"
	"time"
)

// CheckFunc runs every dependency check and returns one result per name.
type CheckFunc func(ctx context.Context) map[string]error

// Monitor periodically runs the dependency checks and serves the latest
// results, so health probes do not hit postgres and redis on every call.
type Monitor struct {
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	results   map[string]error
	checkedAt time.Time
}

// NewMonitor constructs a monitor. Results older than two intervals are
// refreshed on read.
func NewMonitor(check CheckFunc, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = 3 * time.Second
	}
	return &Monitor{
		check:    check,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Run refreshes the results every interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

// Check returns the cached results, running the checks first when they
// are missing or stale.
func (m *Monitor) Check(ctx context.Context) map[string]error {
	m.mu.RLock()
	fresh := m.results != nil && m.now().Sub(m.checkedAt) < 2*m.interval
	results := maps.Clone(m.results)
	m.mu.RUnlock()
	if fresh {
		return results
	}
	return m.refresh(ctx)
}

func (m *Monitor) refresh(ctx context.Context) map[string]error {
	timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := m.check(timeoutCtx)
	if results == nil {
		results = map[string]error{}
	}
	m.mu.Lock()
	m.results = maps.Clone(results)
	m.checkedAt = m.now()
	m.mu.Unlock()
	return results
}
