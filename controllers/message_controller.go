package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/support-relay-api/services"
)

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	Content     string `json:"content"`
	ImageURL    string `json:"image_url"`
	AnonymousID string `json:"anonymous_id"`
}

// MarkReadRequest lists the messages a visitor has seen
type MarkReadRequest struct {
	AnonymousID string   `json:"anonymous_id"`
	MessageIDs  []string `json:"message_ids"`
}

// SendMessage handles POST /api/v1/support/conversations/:id/messages
func (ctl *ConversationController) SendMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := ctl.relay.SendMessage(c.Request.Context(), id, services.SendMessageInput{
		AnonymousID: req.AnonymousID,
		Content:     req.Content,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		respondRelayError(c, err, "Failed to send message")
		return
	}

	noStore(c)
	c.PureJSON(http.StatusCreated, gin.H{
		"success": true,
		"message": message,
	})
}

// MarkRead handles POST /api/v1/support/conversations/:id/read
func (ctl *ConversationController) MarkRead(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	var req MarkReadRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := ctl.relay.MarkRead(c.Request.Context(), id, req.AnonymousID, req.MessageIDs)
	if err != nil {
		respondRelayError(c, err, "Failed to mark messages as read")
		return
	}

	noStore(c)
	c.PureJSON(http.StatusOK, gin.H{
		"success": true,
		"updated": updated,
	})
}
