package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/services"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.PureJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondRelayError maps a relay failure onto the error envelope
func respondRelayError(c *gin.Context, err error, fallbackMessage string) {
	code := services.ErrorCode(err)

	status := http.StatusInternalServerError
	message := fallbackMessage
	switch code {
	case services.CodeValidation, services.CodeClosed:
		status = http.StatusBadRequest
	case services.CodeForbidden:
		status = http.StatusForbidden
	case services.CodeNotFound:
		status = http.StatusNotFound
	}

	var relayErr *services.RelayError
	if status == http.StatusInternalServerError {
		logger.Errorw(fallbackMessage, "path", c.FullPath(), "error", err)
	} else if errors.As(err, &relayErr) {
		message = relayErr.Message
	}
	respondError(c, status, code, message)
}

// noStore keeps browsers and proxies from caching conversation data
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
}

// conversationID reads the :id parameter, rejecting anything that is not a UUID
func conversationID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(c, http.StatusBadRequest, services.CodeValidation, "Invalid conversation ID format")
		return "", false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.PureJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    services.CodeValidation,
				"message": "Invalid JSON in request body",
				"details": err.Error(),
			},
		})
		return false
	}
	return true
}
