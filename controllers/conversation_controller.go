package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/support-relay-api/models"
	"github.com/kendall-kelly/support-relay-api/services"
)

// CreateConversationRequest represents the request body for starting a conversation
type CreateConversationRequest struct {
	AnonymousID    string `json:"anonymous_id"`
	InitialMessage string `json:"initial_message"`
}

// UpdateConversationRequest represents the request body for changing a conversation's status
type UpdateConversationRequest struct {
	Status      string `json:"status"`
	AnonymousID string `json:"anonymous_id"`
}

// ConversationController serves the visitor-facing conversation endpoints
type ConversationController struct {
	relay *services.RelayService
}

// NewConversationController creates a controller backed by relay
func NewConversationController(relay *services.RelayService) *ConversationController {
	return &ConversationController{relay: relay}
}

// CreateConversation handles POST /api/v1/support/conversations
func (ctl *ConversationController) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := ctl.relay.StartConversation(c.Request.Context(), req.AnonymousID, req.InitialMessage)
	if err != nil {
		respondRelayError(c, err, "Failed to create conversation")
		return
	}

	noStore(c)
	c.PureJSON(http.StatusCreated, gin.H{
		"success":      true,
		"conversation": result.Conversation,
		"messages":     result.Messages,
	})
}

// ListConversations handles GET /api/v1/support/conversations?anonymous_id=
func (ctl *ConversationController) ListConversations(c *gin.Context) {
	conversations, err := ctl.relay.ListConversations(c.Request.Context(), c.Query("anonymous_id"))
	if err != nil {
		respondRelayError(c, err, "Failed to get conversations")
		return
	}

	noStore(c)
	c.PureJSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": conversations,
	})
}

// GetConversation handles GET /api/v1/support/conversations/:id
func (ctl *ConversationController) GetConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	result, err := ctl.relay.GetConversation(c.Request.Context(), id, c.Query("anonymous_id"))
	if err != nil {
		respondRelayError(c, err, "Failed to get conversation")
		return
	}

	noStore(c)
	c.PureJSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": result.Conversation,
		"messages":     result.Messages,
	})
}

// UpdateConversation handles PATCH /api/v1/support/conversations/:id
func (ctl *ConversationController) UpdateConversation(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}

	var req UpdateConversationRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := ctl.relay.UpdateStatus(c.Request.Context(), id, req.AnonymousID, models.ConversationStatus(req.Status))
	if err != nil {
		respondRelayError(c, err, "Failed to update conversation")
		return
	}

	noStore(c)
	c.PureJSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": result.Conversation,
		"messages":     result.Messages,
	})
}
