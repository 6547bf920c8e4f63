package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/middleware/validation"
	"github.com/lever-lab/backend/pkg/logger"
)

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

// badRequest reports the offending field of a rejected body or query.
func badRequest(c *fiber.Ctx, err error) error {
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request",
			"field":   fe.Field,
		})
	}
	return fail(c, fiber.StatusBadRequest, "Invalid request body")
}

func internalError(c *fiber.Ctx, msg string, err error) error {
	logger.Error(msg,
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return fail(c, fiber.StatusInternalServerError, msg)
}
