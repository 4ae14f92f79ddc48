package httputil

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

// WriteError standardizes JSON error responses as {"error": msg}.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// WriteValidation reports a 400 naming the offending field path.
func WriteValidation(c *fiber.Ctx, verr *models.ValidationError) error {
	body := fiber.Map{"error": verr.Error()}
	if verr.Path != "" {
		body["path"] = verr.Path
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// AsValidation unwraps a *models.ValidationError from err.
func AsValidation(err error) (*models.ValidationError, bool) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
