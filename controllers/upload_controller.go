package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/services"
	"github.com/kendall-kelly/support-relay-api/utils"
)

// UploadController accepts images visitors attach to support messages
type UploadController struct {
	images services.ImageService
}

// NewUploadController creates an upload controller. A nil images service
// means storage is not configured and uploads answer 503.
func NewUploadController(images services.ImageService) *UploadController {
	return &UploadController{images: images}
}

// UploadImage handles POST /api/v1/support/upload
func (ctl *UploadController) UploadImage(c *gin.Context) {
	if ctl.images == nil {
		respondError(c, http.StatusServiceUnavailable, "UPLOAD_UNAVAILABLE", "Image uploads are not configured")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "NO_FILE", "No file provided")
		return
	}

	uploaded, err := ctl.images.UploadImage(c.Request.Context(), fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			respondError(c, http.StatusBadRequest, uploadErr.Code, uploadErr.Message)
			return
		}
		logger.Errorw("Support image upload failed", "filename", fileHeader.Filename, "error", err)
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to upload image")
		return
	}

	c.PureJSON(http.StatusOK, gin.H{
		"success":  true,
		"url":      uploaded.URL,
		"filename": uploaded.Filename,
	})
}
