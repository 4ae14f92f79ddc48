package api

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_reports/backend/internal/cache"
	"github.com/ncecere/usage_reports/backend/internal/httpserver/httputil"
	"github.com/ncecere/usage_reports/backend/internal/limits"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// rateLimit throttles by client IP. A failing limiter store lets the
// request through.
func rateLimit(limiter limits.Limiter, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		decision, err := limiter.Allow(c.UserContext(), "ip:"+c.IP())
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err)
			return c.Next()
		}
		if decision.Limit > 0 {
			c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		if !decision.Allowed {
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
			return httputil.WriteError(c, fiber.StatusTooManyRequests, "too many requests, please try again later")
		}
		return c.Next()
	}
}

// idempotent replays the stored response of an earlier request carrying the
// same Idempotency-Key. Only successful responses are stored.
func idempotent(idem *cache.IdempotencyCache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(headerIdempotencyKey))
		if raw == "" || idem == nil {
			return c.Next()
		}
		ctx := c.UserContext()
		key := c.Path() + ":" + raw

		if resp, ok := idem.Get(ctx, key); ok {
			c.Set(headerReplayed, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(resp.Status).Send(resp.Body)
		}
		reserved, err := idem.Reserve(ctx, key)
		if err == nil && !reserved {
			return httputil.WriteError(c, fiber.StatusConflict, "a request with this Idempotency-Key is already in progress")
		}

		if err := c.Next(); err != nil {
			idem.Release(ctx, key)
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusMultipleChoices {
			idem.Release(ctx, key)
			return nil
		}
		body := append([]byte(nil), c.Response().Body()...)
		idem.Set(ctx, key, cache.Response{Status: status, Body: body})
		return nil
	}
}
