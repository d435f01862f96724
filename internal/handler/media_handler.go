package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

// MediaHandler handles question image uploads.
type MediaHandler struct {
	mediaService *service.MediaService
	log          zerolog.Logger
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(mediaService *service.MediaService, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		log:          log.With().Str("component", "media_handler").Logger(),
	}
}

// UploadImage godoc
// POST /api/v1/teacher/media
// Accepts multipart field "file" and returns the URL to use as a question image.
func (h *MediaHandler) UploadImage(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"file": err.Error()})
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	defer file.Close()

	url, err := h.mediaService.SaveQuestionImage(file, header.Size)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType), errors.Is(err, service.ErrFileTooLarge):
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"file": err.Error()})
		default:
			h.log.Error().Err(err).Msg("Failed to store question image")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"url": url})
}
