package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/fieldsurvey/fieldsurvey/internal/logging"
	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/utils"
	"github.com/gofiber/fiber/v2"
)

// ListResponses handles GET /v1/responses
func (h *Handler) ListResponses(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), utils.StoreTimeout)
	defer cancel()

	responses, err := h.intakeService.ListAll(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, responses)
}

// SubmitResponse handles POST /v1/responses
func (h *Handler) SubmitResponse(c *fiber.Ctx) error {
	var req models.SubmitResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return invalid(c, "failed to parse request body: "+err.Error())
	}
	if err := h.validate.Struct(&req); err != nil {
		return invalid(c, validationMessage(err))
	}

	ctx, cancel := context.WithTimeout(
		logging.WithInstallationID(c.UserContext(), req.InstallationID), utils.StoreTimeout)
	defer cancel()

	result, err := h.intakeService.Submit(ctx, &req)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, result)
}

// formFile adapts a multipart file header to services.UploadedFile
type formFile struct {
	header *multipart.FileHeader
}

func (f formFile) Filename() string { return f.header.Filename }

func (f formFile) Open() (io.ReadCloser, error) { return f.header.Open() }

// AttachFile handles POST /v1/responses/:id/answers/:input_id/file
func (h *Handler) AttachFile(c *fiber.Ctx) error {
	responseID := c.Params("id")
	inputID, err := strconv.ParseInt(c.Params("input_id"), 10, 64)
	if err != nil {
		return invalid(c, "input_id must be an integer")
	}

	header, err := c.FormFile("file")
	if err != nil {
		return invalid(c, "multipart field 'file' is required")
	}
	if header.Filename == "" {
		return invalid(c, "uploaded file has no name")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), utils.UploadTimeout)
	defer cancel()

	result, err := h.attachmentService.AttachFile(ctx, responseID, inputID, formFile{header: header})
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, result)
}
