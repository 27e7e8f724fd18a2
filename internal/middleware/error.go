package middleware

import (
	"errors"

	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/services"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders errors that escaped the handlers as an error envelope
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := services.CodeInternal
		message := code.Message()

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
			if status < fiber.StatusInternalServerError {
				code = services.CodeInvalidRequest
			}
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("Request error",
				"path", c.Path(),
				"method", c.Method(),
				"status", status,
				"error", err,
			)
		} else {
			logger.Debug("Request rejected",
				"path", c.Path(),
				"method", c.Method(),
				"status", status,
				"error", err,
			)
		}

		return c.Status(status).JSON(models.Failure(int(code), message))
	}
}
