package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/support-relay-api/config"
	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/metrics"
	"github.com/kendall-kelly/support-relay-api/services"
)

// WebhookController receives Telegram updates. The shared secret is checked
// by middleware before these handlers run.
type WebhookController struct {
	relay *services.RelayService
	cfg   *config.Config
}

// NewWebhookController creates a webhook controller
func NewWebhookController(relay *services.RelayService, cfg *config.Config) *WebhookController {
	return &WebhookController{relay: relay, cfg: cfg}
}

// HandleUpdate handles POST /api/v1/telegram/webhook.
// Anything past payload decoding is acknowledged with 200 so Telegram does not retry.
func (ctl *WebhookController) HandleUpdate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	event, err := services.ParseUpdate(body)
	if err != nil {
		logger.Warnw("Failed to parse Telegram update", "error", err)
		respondError(c, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON")
		return
	}

	meta := event.Meta()
	logger.Debugw("Received Telegram update",
		"update_id", meta.UpdateID,
		"has_message", meta.MessageID != 0,
		"message_thread_id", meta.ThreadID,
	)

	result, err := ctl.relay.HandleInboundEvent(c.Request.Context(), event)
	if err != nil {
		logger.Errorw("Error processing Telegram update", "update_id", meta.UpdateID, "error", err)
		result = metrics.WebhookFailed
	}
	metrics.WebhookUpdatesTotal.WithLabelValues(result).Inc()

	c.PureJSON(http.StatusOK, gin.H{"ok": true})
}

// Status handles GET /api/v1/telegram/webhook. Only reports whether each
// setting is present, never the values.
func (ctl *WebhookController) Status(c *gin.Context) {
	c.PureJSON(http.StatusOK, gin.H{
		"status":  "active",
		"message": "Telegram webhook endpoint is active",
		"configured": gin.H{
			"bot_token":      ctl.cfg.TelegramBotToken != "",
			"forum_group_id": ctl.cfg.TelegramForumGroupID != "",
			"webhook_secret": ctl.cfg.TelegramWebhookSecret != "",
		},
	})
}
