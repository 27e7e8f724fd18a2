package handlers

import (
	"errors"
	"path/filepath"

	"github.com/fieldsurvey/fieldsurvey/internal/models"
	"github.com/fieldsurvey/fieldsurvey/internal/services"
	"github.com/fieldsurvey/fieldsurvey/internal/uploads"
	"github.com/gofiber/fiber/v2"
)

// ServeUpload handles GET /v1/uploads/:filename
func (h *Handler) ServeUpload(c *fiber.Ctx) error {
	name := c.Params("filename")

	f, info, err := h.files.Open(name)
	switch {
	case errors.Is(err, uploads.ErrInvalidName):
		return invalid(c, "invalid file name")
	case errors.Is(err, uploads.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(
			models.Failure(int(services.CodeInvalidRequest), "file not found"))
	case err != nil:
		return h.fail(c, err)
	}

	if ext := filepath.Ext(name); ext != "" {
		c.Type(ext)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.SendStream(f, int(info.Size()))
}
