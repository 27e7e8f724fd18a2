package handlers

import (
	"context"
	"time"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/services"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// Health handles health check requests
func (h *Handler) Health(c *fiber.Ctx) error {
	resp := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   Version,
		Store:     "ok",
	}
	status := fiber.StatusOK

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("Store ping failed", "error", err)
			resp.Status = "degraded"
			resp.Store = err.Error()
			status = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(status).JSON(resp)
}

// NotFound handles requests that matched no route
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(
		models.Failure(int(services.CodeInvalidRequest), "route not found: "+c.Path()))
}
