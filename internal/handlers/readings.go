package handlers

import (
	"context"
	"fmt"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// SubmitReadings handles POST /v1/readings
func (h *Handler) SubmitReadings(c *fiber.Ctx) error {
	var batch []models.ReadingRequest
	if err := c.BodyParser(&batch); err != nil {
		return invalid(c, "failed to parse request body: "+err.Error())
	}
	if len(batch) > utils.MaxReadingsPerBatch {
		return invalid(c, fmt.Sprintf("batch size exceeds maximum of %d readings", utils.MaxReadingsPerBatch))
	}
	for i := range batch {
		if err := h.validate.Struct(&batch[i]); err != nil {
			return invalid(c, fmt.Sprintf("reading %d: %s", i, validationMessage(err)))
		}
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	created, err := h.readingService.Submit(ctx, batch)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusCreated, created)
}
