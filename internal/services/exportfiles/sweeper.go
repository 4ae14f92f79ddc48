package exportfiles

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes expired export files. Run blocks until its
// context is cancelled.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
	onSwept  func(int64)
}

func NewSweeper(svc *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{svc: svc, interval: interval, logger: logger}
}

// OnSwept registers a callback receiving the count of each non-empty sweep.
func (s *Sweeper) OnSwept(fn func(int64)) *Sweeper {
	s.onSwept = fn
	return s
}

func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil || s.svc == nil {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.svc.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("export file sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		s.logger.Info("expired export files removed", "count", n)
		if s.onSwept != nil {
			s.onSwept(n)
		}
	}
}
