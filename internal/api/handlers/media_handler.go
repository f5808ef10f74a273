package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/draftly/publisher/internal/service"
)

type MediaHandler struct {
	s service.PostService
}

func NewMediaHandler(service service.PostService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) UploadImages(c *fiber.Ctx) error {
	userID := GetUserID(c)

	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No files selected",
		})
	}

	urls, err := h.s.UploadImages(c.Context(), userID, files)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"urls": urls,
	})
}
