package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ncecere/usage_reports/backend/internal/cache"
	"github.com/ncecere/usage_reports/backend/internal/config"
	"github.com/ncecere/usage_reports/backend/internal/db"
	"github.com/ncecere/usage_reports/backend/internal/health"
	"github.com/ncecere/usage_reports/backend/internal/limits"
	"github.com/ncecere/usage_reports/backend/internal/notify"
	"github.com/ncecere/usage_reports/backend/internal/observability"
	"github.com/ncecere/usage_reports/backend/internal/redisclient"
	"github.com/ncecere/usage_reports/backend/internal/services/exportfiles"
	reportsvc "github.com/ncecere/usage_reports/backend/internal/services/reports"
	"github.com/ncecere/usage_reports/backend/internal/storage/blob"
)

const (
	limiterJanitorInterval = time.Minute
	healthCheckInterval    = 15 * time.Second
	healthCheckTimeout     = 3 * time.Second
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	Logger        *slog.Logger
	DBPool        *pgxpool.Pool
	Redis         *redis.Client
	Queries       *db.Queries
	Reports       *reportsvc.Service
	ExportFiles   *exportfiles.Service
	Sweeper       *exportfiles.Sweeper
	Slack         notify.Sender
	Limiter       limits.Limiter
	MemoryLimiter *limits.MemoryLimiter
	Idempotency   *cache.IdempotencyCache
	Observability *observability.Provider
	Health        *health.Monitor
}

// NewContainer builds a dependency container from the provided primitives.
// The redis client is optional.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("db pool is required")
	}
	logger := slog.Default()

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	queries := db.New(pool)

	blobStore, err := blob.New(ctx, cfg.Exports)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	exportFiles := exportfiles.NewService(queries, blobStore, cfg.Exports, logger)
	sweeper := exportfiles.NewSweeper(exportFiles, cfg.Exports.SweepInterval, logger).
		OnSwept(obsProvider.RecordExportsSwept)

	var slackSender notify.Sender
	if cfg.Notifications.Slack.Enabled {
		slackSender = notify.NewSlackSender(cfg.Notifications.Slack, logger)
	}
	announcer := notify.NewComposite(
		notify.NewWebhookAnnouncer(cfg.Notifications.Webhooks, cfg.Notifications.Webhook, logger),
		notify.NewSlackAnnouncer(slackSender, cfg.Notifications.Slack.AnnounceToken, cfg.Notifications.Slack.AnnounceChannel),
	)

	opts := []reportsvc.Option{
		reportsvc.WithAnnouncer(announcer),
		reportsvc.WithSender(slackSender),
		reportsvc.WithLogger(logger),
		reportsvc.WithPublicBaseURL(cfg.Server.PublicBaseURL),
	}
	if obsProvider != nil {
		opts = append(opts, reportsvc.WithRecorder(obsProvider))
	}
	reports := reportsvc.NewService(queries, reportsvc.PgxTx(pool), cfg.Reports, opts...)

	limiter, memLimiter := limits.New(cfg.RateLimit, redisClient)

	container := &Container{
		Config:        cfg,
		Logger:        logger,
		DBPool:        pool,
		Redis:         redisClient,
		Queries:       queries,
		Reports:       reports,
		ExportFiles:   exportFiles,
		Sweeper:       sweeper,
		Slack:         slackSender,
		Limiter:       limiter,
		MemoryLimiter: memLimiter,
		Idempotency:   cache.NewIdempotencyCache(redisClient, cfg.Idempotency.TTL),
		Observability: obsProvider,
	}
	container.Health = health.NewMonitor(container.Ping, healthCheckInterval, healthCheckTimeout)
	return container, nil
}

// Workers returns the background loops that must run until shutdown.
func (c *Container) Workers() []func(context.Context) error {
	workers := []func(context.Context) error{c.Sweeper.Run}
	if c.Health != nil {
		workers = append(workers, c.Health.Run)
	}
	if c.MemoryLimiter != nil {
		mem := c.MemoryLimiter
		workers = append(workers, func(ctx context.Context) error {
			return mem.Run(ctx, limiterJanitorInterval)
		})
	}
	return workers
}

// Ping checks postgres and, when configured, redis.
func (c *Container) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{}
	if c.DBPool != nil {
		checks["postgres"] = c.DBPool.Ping(ctx)
	}
	if c.Redis != nil {
		checks["redis"] = redisclient.Ping(ctx, c.Redis)
	}
	return checks
}

// Close flushes telemetry and releases the redis client. The pool is owned
// by the caller.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if err := c.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown observability: %w", err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
