package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// statusByCode maps service error codes to HTTP statuses
var statusByCode = map[services.ErrorCode]int{
	services.CodeInvalidRequest:      fiber.StatusBadRequest,
	services.CodeUnauthorized:        fiber.StatusUnauthorized,
	services.CodeSurveyNotFound:      fiber.StatusNotFound,
	services.CodeSaveFailed:          fiber.StatusConflict,
	services.CodeSurveyClosed:        fiber.StatusForbidden,
	services.CodeResponseNotFound:    fiber.StatusNotFound,
	services.CodeInputNotFound:       fiber.StatusNotFound,
	services.CodeFileOpenFailed:      fiber.StatusInternalServerError,
	services.CodeInternal:            fiber.StatusInternalServerError,
	services.CodePlaceholderNotFound: fiber.StatusUnprocessableEntity,
}

// HTTPStatus returns the HTTP status used for code
func HTTPStatus(code services.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func success(c *fiber.Ctx, status int, payload interface{}) error {
	return c.Status(status).JSON(models.Success(payload))
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	svcErr, ok := services.AsServiceError(err)
	if !ok {
		svcErr = services.NewServiceError(services.CodeInternal, "")
	}

	status := HTTPStatus(svcErr.Code)
	if status >= fiber.StatusInternalServerError {
		h.logger.WithContext(c.UserContext()).Error("Request failed",
			"path", c.Path(),
			"code", int(svcErr.Code),
			"error", err)
	}

	return c.Status(status).JSON(models.Failure(int(svcErr.Code), svcErr.Message))
}

func invalid(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(
		models.Failure(int(services.CodeInvalidRequest), message))
}

// validationMessage flattens validator errors into one line
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
