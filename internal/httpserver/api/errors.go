package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_reports/backend/internal/httpserver/httputil"
	"github.com/ncecere/usage_reports/backend/internal/models"
	"github.com/ncecere/usage_reports/backend/internal/requestctx"
	"github.com/ncecere/usage_reports/backend/internal/services/exportfiles"
	reportsvc "github.com/ncecere/usage_reports/backend/internal/services/reports"
)

// writeServiceError maps service errors onto statuses. Anything
// unclassified is logged and reported as a generic 500.
func (h *handler) writeServiceError(c *fiber.Ctx, err error) error {
	if verr, ok := httputil.AsValidation(err); ok {
		return httputil.WriteValidation(c, verr)
	}
	switch {
	case errors.Is(err, models.ErrExpired):
		return httputil.WriteError(c, fiber.StatusNotFound, "file expired")
	case errors.Is(err, models.ErrNotFound):
		return httputil.WriteError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, exportfiles.ErrTooLarge):
		return httputil.WriteError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, reportsvc.ErrSlackUnavailable):
		return httputil.WriteError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, reportsvc.ErrSlackDelivery):
		return httputil.WriteError(c, fiber.StatusBadGateway, err.Error())
	}
	requestctx.Logger(c.UserContext(), h.logger).Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return httputil.WriteError(c, fiber.StatusInternalServerError, "internal error")
}

func badRequest(c *fiber.Ctx, msg string) error {
	return httputil.WriteError(c, fiber.StatusBadRequest, msg)
}
