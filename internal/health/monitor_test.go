package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCheckCachesUntilStale(t *testing.T) {
	calls := 0
	m := NewMonitor(func(context.Context) map[string]error {
		calls++
		return map[string]error{"postgres": nil}
	}, time.Minute, time.Second)
	now := time.Date(2026, 2, 15, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.Equal(t, map[string]error{"postgres": nil}, m.Check(context.Background()))
	m.Check(context.Background())
	require.Equal(t, 1, calls)

	now = now.Add(3 * time.Minute)
	m.Check(context.Background())
	require.Equal(t, 2, calls)
}

func TestCheckReturnsCopy(t *testing.T) {
	m := NewMonitor(func(context.Context) map[string]error {
		return map[string]error{"redis": errors.New("connection refused")}
	}, time.Minute, time.Second)

	first := m.Check(context.Background())
	first["redis"] = nil
	require.EqualError(t, m.Check(context.Background())["redis"], "connection refused")
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	checked := make(chan struct{}, 1)
	m := NewMonitor(func(context.Context) map[string]error {
		select {
		case checked <- struct{}{}:
		default:
		}
		return nil
	}, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	<-checked
	cancel()
	require.NoError(t, <-done)
	require.NotNil(t, m.Check(context.Background()))
}
