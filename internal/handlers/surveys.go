package handlers

import (
	"context"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

const invalidCodeMessage = "survey code must be an integer"

func surveyCode(c *fiber.Ctx) (int, bool) {
	code, err := c.ParamsInt("code")
	return code, err == nil
}

// ListSurveys handles GET /v1/surveys
func (h *Handler) ListSurveys(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	surveys, err := h.surveyService.List(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, surveys)
}

// ActivateSurvey handles POST /v1/surveys/:status
func (h *Handler) ActivateSurvey(c *fiber.Ctx) error {
	// params alias the request buffer; the status outlives the request
	status := models.SurveyStatus(fiberutils.CopyString(c.Params("status")))
	if !status.IsActivatable() {
		return invalid(c, "status must be one of: draft, active, test")
	}

	var payload models.SurveyPayload
	if err := c.BodyParser(&payload); err != nil {
		return invalid(c, "failed to parse request body: "+err.Error())
	}
	if err := h.validate.Struct(&payload); err != nil {
		return invalid(c, validationMessage(err))
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	result, err := h.surveyService.ActivateOrUpdate(ctx, status, &payload)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, result)
}

// GetSurvey handles GET /v1/surveys/:code
func (h *Handler) GetSurvey(c *fiber.Ctx) error {
	code, ok := surveyCode(c)
	if !ok {
		return invalid(c, invalidCodeMessage)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	survey, err := h.surveyService.Get(ctx, code)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, survey)
}

// CloseSurvey handles POST /v1/surveys/:code/close
func (h *Handler) CloseSurvey(c *fiber.Ctx) error {
	code, ok := surveyCode(c)
	if !ok {
		return invalid(c, invalidCodeMessage)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	result, err := h.surveyService.Close(ctx, code)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, result)
}

// ListSurveyResponses handles GET /v1/surveys/:code/responses
func (h *Handler) ListSurveyResponses(c *fiber.Ctx) error {
	code, ok := surveyCode(c)
	if !ok {
		return invalid(c, invalidCodeMessage)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	responses, err := h.surveyService.ListResponses(ctx, code)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, responses)
}

// GetSurveyFull handles GET /v1/surveys/:code/full
func (h *Handler) GetSurveyFull(c *fiber.Ctx) error {
	code, ok := surveyCode(c)
	if !ok {
		return invalid(c, invalidCodeMessage)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	full, err := h.surveyService.GetWithResponses(ctx, code)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, full)
}

// ListSurveyReadings handles GET /v1/surveys/:code/readings
func (h *Handler) ListSurveyReadings(c *fiber.Ctx) error {
	code, ok := surveyCode(c)
	if !ok {
		return invalid(c, invalidCodeMessage)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	readings, err := h.surveyService.ListReadings(ctx, code)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, readings)
}
