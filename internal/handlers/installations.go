package handlers

import (
	"context"

	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// RegisterInstallation handles POST /v1/installations
func (h *Handler) RegisterInstallation(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	result, err := h.registrar.Register(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusCreated, result)
}
