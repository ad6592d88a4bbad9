package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/metrics"
	"github.com/kendall-kelly/support-relay-api/models"
	"github.com/kendall-kelly/support-relay-api/utils"
)

const (
	// MaxMessageLength applies to every visitor supplied text field
	MaxMessageLength = 5000

	// AnonymousDisplayName is how visitors appear in Telegram
	AnonymousDisplayName = "Anonymous User"

	ForwardedNotice = "Your message has been forwarded to our support team. We will respond shortly."
	OfflineNotice   = "Support system is currently offline. Your message has been saved and will be reviewed."
)

// ConversationWithMessages is a conversation together with its message history
type ConversationWithMessages struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
}

// SendMessageInput is a visitor follow-up message
type SendMessageInput struct {
	AnonymousID string
	Content     string
	ImageURL    string
}

// RelayService runs the conversation lifecycle between visitors and the
// support channel. Every message is stored before any relay attempt, and
// gateway failures never fail the visitor's request.
type RelayService struct {
	store   ConversationStore
	gateway ChannelGateway
}

// NewRelayService creates a relay over store and gateway
func NewRelayService(store ConversationStore, gateway ChannelGateway) *RelayService {
	return &RelayService{store: store, gateway: gateway}
}

// bestEffort runs a side call whose failure is logged and dropped
func bestEffort(operation string, fn func() error, keysAndValues ...interface{}) bool {
	if err := fn(); err != nil {
		logger.Warnw("Best-effort operation failed",
			append([]interface{}{"operation", operation, "error", err}, keysAndValues...)...)
		return false
	}
	return true
}

func validateAnonymousID(anonymousID string) error {
	if anonymousID == "" {
		return validationError("anonymous_id is required")
	}
	if !utils.ValidateAnonymousID(anonymousID) {
		return validationError("Invalid anonymous_id format")
	}
	return nil
}

// loadOwned loads a conversation and checks that anonymousID owns it
func (s *RelayService) loadOwned(ctx context.Context, id, anonymousID string) (*models.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, notFoundError()
		}
		return nil, databaseError("Failed to get conversation", err)
	}
	if conversation.AnonymousID != anonymousID {
		logger.Warnw("Conversation access denied", "conversation_id", id)
		return nil, forbiddenError()
	}
	return conversation, nil
}

func (s *RelayService) withMessages(ctx context.Context, conversation *models.Conversation) (*ConversationWithMessages, error) {
	messages, err := s.store.ListMessages(ctx, conversation.ID, DefaultMessageLimit)
	if err != nil {
		return nil, databaseError("Failed to get messages", err)
	}
	return &ConversationWithMessages{Conversation: conversation, Messages: messages}, nil
}

// StartConversation creates a conversation, opens a support topic for it when
// Telegram is configured and stores the visitor's message plus a system notice
func (s *RelayService) StartConversation(ctx context.Context, anonymousID, initialMessage string) (*ConversationWithMessages, error) {
	if err := validateAnonymousID(anonymousID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(initialMessage) == "" {
		return nil, validationError("initial_message cannot be empty")
	}
	if utf8.RuneCountInString(initialMessage) > MaxMessageLength {
		return nil, validationError(fmt.Sprintf("initial_message is too long (max %d characters)", MaxMessageLength))
	}
	text := strings.TrimSpace(initialMessage)

	conversation, err := s.store.CreateConversation(ctx, anonymousID, text)
	if err != nil {
		return nil, databaseError("Failed to create conversation", err)
	}

	if s.gateway.IsConfigured() {
		threadID, err := s.gateway.CreateThread(ctx, conversation.ID, AnonymousDisplayName, text)
		if err != nil {
			logger.Errorw("Failed to create support topic, continuing without relay",
				"conversation_id", conversation.ID, "error", err)
		} else {
			if err := s.store.UpdateConversation(ctx, conversation.ID, ConversationUpdate{MessageThreadID: &threadID}); err != nil {
				logger.Errorw("Support topic created but not linked to its conversation",
					"conversation_id", conversation.ID, "thread_id", threadID, "error", err)
				return nil, databaseError("Failed to link conversation to support topic", err)
			}
			conversation.MessageThreadID = &threadID
		}
	}

	userMessage := &models.Message{
		ConversationID: conversation.ID,
		SenderType:     models.SenderUser,
		Content:        &text,
	}
	if err := s.store.CreateMessage(ctx, userMessage); err != nil {
		return nil, databaseError("Failed to create message", err)
	}

	notice := OfflineNotice
	outcome := metrics.OutcomeStoredOnly
	if conversation.HasThread() {
		notice = ForwardedNotice
		outcome = metrics.OutcomeRelayed
	}
	systemMessage := &models.Message{
		ConversationID: conversation.ID,
		SenderType:     models.SenderSystem,
		Content:        &notice,
	}
	if err := s.store.CreateMessage(ctx, systemMessage); err != nil {
		return nil, databaseError("Failed to create message", err)
	}
	metrics.RelayMessagesTotal.WithLabelValues(metrics.DirectionOutbound, outcome).Inc()

	// the store moved last_message_at forward
	conversation.LastMessageAt = systemMessage.CreatedAt

	logger.Infow("Support conversation started",
		"conversation_id", conversation.ID,
		"relayed", conversation.HasThread(),
	)

	return &ConversationWithMessages{
		Conversation: conversation,
		Messages:     []models.Message{*userMessage, *systemMessage},
	}, nil
}

// ListConversations returns the visitor's conversations, most recent first
func (s *RelayService) ListConversations(ctx context.Context, anonymousID string) ([]models.Conversation, error) {
	if err := validateAnonymousID(anonymousID); err != nil {
		return nil, err
	}
	conversations, err := s.store.ListConversations(ctx, anonymousID)
	if err != nil {
		return nil, databaseError("Failed to get conversations", err)
	}
	return conversations, nil
}

// GetConversation returns a conversation with its messages. An empty
// anonymousID skips the ownership check.
func (s *RelayService) GetConversation(ctx context.Context, id, anonymousID string) (*ConversationWithMessages, error) {
	var (
		conversation *models.Conversation
		err          error
	)
	if anonymousID != "" {
		if err := validateAnonymousID(anonymousID); err != nil {
			return nil, err
		}
		conversation, err = s.loadOwned(ctx, id, anonymousID)
	} else {
		conversation, err = s.store.GetConversation(ctx, id)
		if errors.Is(err, ErrConversationNotFound) {
			err = notFoundError()
		} else if err != nil {
			err = databaseError("Failed to get conversation", err)
		}
	}
	if err != nil {
		return nil, err
	}
	return s.withMessages(ctx, conversation)
}

// SendMessage stores a visitor follow-up and relays it to the conversation's topic
func (s *RelayService) SendMessage(ctx context.Context, id string, input SendMessageInput) (*models.Message, error) {
	if err := validateAnonymousID(input.AnonymousID); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	imageURL := strings.TrimSpace(input.ImageURL)
	if content == "" && imageURL == "" {
		return nil, validationError("Either content or image_url is required")
	}
	if utf8.RuneCountInString(input.Content) > MaxMessageLength {
		return nil, validationError(fmt.Sprintf("Message is too long (max %d characters)", MaxMessageLength))
	}

	conversation, err := s.loadOwned(ctx, id, input.AnonymousID)
	if err != nil {
		return nil, err
	}
	// status is read fresh on every send, so a reopened conversation accepts messages again
	if !conversation.Status.AcceptsMessages() {
		return nil, closedError()
	}

	message := &models.Message{ConversationID: conversation.ID, SenderType: models.SenderUser}
	if content != "" {
		message.Content = &content
	}
	if imageURL != "" {
		message.ImageURL = &imageURL
	}
	if err := s.store.CreateMessage(ctx, message); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, notFoundError()
		}
		return nil, databaseError("Failed to create message", err)
	}

	outcome := metrics.OutcomeStoredOnly
	if s.gateway.IsConfigured() && conversation.HasThread() {
		if s.relayOutbound(ctx, *conversation.MessageThreadID, message) {
			outcome = metrics.OutcomeRelayed
		}
	}
	metrics.RelayMessagesTotal.WithLabelValues(metrics.DirectionOutbound, outcome).Inc()

	return message, nil
}

// relayOutbound forwards a stored visitor message to Telegram and records the
// Telegram message id on success
func (s *RelayService) relayOutbound(ctx context.Context, threadID int64, message *models.Message) bool {
	var telegramMessageID int64
	sent := bestEffort("relay_message", func() error {
		var err error
		if message.HasImage() {
			caption := ""
			if message.HasContent() {
				caption = *message.Content
			}
			telegramMessageID, err = s.gateway.SendImage(ctx, threadID, *message.ImageURL, caption, AnonymousDisplayName)
		} else {
			telegramMessageID, err = s.gateway.SendText(ctx, threadID, *message.Content, AnonymousDisplayName)
		}
		return err
	}, "conversation_id", message.ConversationID, "thread_id", threadID)
	if !sent {
		return false
	}

	if bestEffort("attach_external_ref", func() error {
		return s.store.AttachExternalRef(ctx, message.ID, telegramMessageID)
	}, "message_id", message.ID) {
		message.TelegramMessageID = &telegramMessageID
	}
	return true
}

// UpdateStatus changes a conversation's status and tells the support topic about it
func (s *RelayService) UpdateStatus(ctx context.Context, id, anonymousID string, status models.ConversationStatus) (*ConversationWithMessages, error) {
	if status == "" {
		return nil, validationError("status is required")
	}
	if !status.Valid() {
		return nil, validationError("Invalid status value")
	}
	if err := validateAnonymousID(anonymousID); err != nil {
		return nil, err
	}

	conversation, err := s.loadOwned(ctx, id, anonymousID)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateConversation(ctx, id, ConversationUpdate{Status: &status}); err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, notFoundError()
		}
		return nil, databaseError("Failed to update conversation", err)
	}

	if s.gateway.IsConfigured() && conversation.HasThread() {
		threadID := *conversation.MessageThreadID
		bestEffort("notify_status_change", func() error {
			return s.gateway.NotifyStatusChange(ctx, threadID, status)
		}, "conversation_id", id, "thread_id", threadID)
		if status == models.StatusClosed {
			bestEffort("close_thread", func() error {
				return s.gateway.CloseThread(ctx, threadID)
			}, "conversation_id", id, "thread_id", threadID)
		}
	}

	logger.Infow("Support conversation status changed", "conversation_id", id, "status", status)

	updated, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, databaseError("Failed to get conversation", err)
	}
	return s.withMessages(ctx, updated)
}

// MarkRead flags messages of an owned conversation as read
func (s *RelayService) MarkRead(ctx context.Context, id, anonymousID string, messageIDs []string) (int64, error) {
	if err := validateAnonymousID(anonymousID); err != nil {
		return 0, err
	}
	if _, err := s.loadOwned(ctx, id, anonymousID); err != nil {
		return 0, err
	}

	updated, err := s.store.MarkMessagesRead(ctx, id, messageIDs)
	if err != nil {
		return 0, databaseError("Failed to mark messages as read", err)
	}
	return updated, nil
}

// HandleInboundEvent stores a support reply posted in a forum topic. It returns
// what was done with the event; only store failures are reported as errors.
func (s *RelayService) HandleInboundEvent(ctx context.Context, event InboundEvent) (string, error) {
	meta := event.Meta()

	if meta.MessageID == 0 {
		return metrics.WebhookIgnored, nil
	}
	if !s.gateway.IsFromTargetChannel(meta) {
		logger.Infow("Ignoring update from another chat", "chat_id", meta.ChatID, "update_id", meta.UpdateID)
		return metrics.WebhookWrongChat, nil
	}
	threadID, ok := s.gateway.ExtractThreadRef(meta)
	if !ok {
		logger.Debugw("Ignoring message outside a forum topic", "update_id", meta.UpdateID)
		return metrics.WebhookNoThread, nil
	}
	if meta.FromIsBot {
		logger.Debugw("Ignoring bot message", "thread_id", threadID, "update_id", meta.UpdateID)
		return metrics.WebhookBotMessage, nil
	}

	conversation, err := s.store.GetConversationByThreadID(ctx, threadID)
	if err != nil {
		if !errors.Is(err, ErrConversationNotFound) {
			return metrics.WebhookFailed, fmt.Errorf("failed to resolve conversation for thread %d: %w", threadID, err)
		}
		logger.Warnw("No conversation linked to support topic", "thread_id", threadID)
		if s.gateway.IsConfigured() {
			bestEffort("warn_unlinked_thread", func() error {
				return s.gateway.WarnUnlinkedThread(ctx, threadID)
			}, "thread_id", threadID)
		}
		return metrics.WebhookUnknownThread, nil
	}

	var content, imageURL string
	switch e := event.(type) {
	case *TextEvent:
		content = e.Text
	case *PhotoEvent:
		content = e.Caption
		imageURL = s.resolveImage(ctx, e.FileID, threadID)
	}
	if content == "" && imageURL == "" {
		return metrics.WebhookEmpty, nil
	}

	senderName := meta.FromName
	senderID := meta.FromID
	message := &models.Message{
		ConversationID:   conversation.ID,
		SenderType:       models.SenderSupport,
		SenderName:       &senderName,
		SenderTelegramID: &senderID,
	}
	if content != "" {
		message.Content = &content
	}
	if imageURL != "" {
		message.ImageURL = &imageURL
	}
	if err := s.store.CreateMessage(ctx, message); err != nil {
		return metrics.WebhookFailed, fmt.Errorf("failed to store support reply: %w", err)
	}

	bestEffort("attach_external_ref", func() error {
		return s.store.AttachExternalRef(ctx, message.ID, meta.MessageID)
	}, "message_id", message.ID)

	metrics.RelayMessagesTotal.WithLabelValues(metrics.DirectionInbound, metrics.OutcomeRelayed).Inc()
	logger.Infow("Stored support reply",
		"conversation_id", conversation.ID,
		"message_id", message.ID,
		"has_content", content != "",
		"has_image", imageURL != "",
	)
	return metrics.WebhookStored, nil
}

// resolveImage turns a Telegram file id into a URL. When resolution fails the
// raw file id is stored instead, which clients cannot load.
func (s *RelayService) resolveImage(ctx context.Context, fileID string, threadID int64) string {
	if !s.gateway.IsConfigured() {
		return fileID
	}
	url, err := s.gateway.ResolveFileURL(ctx, fileID)
	if err != nil {
		logger.Warnw("Failed to resolve Telegram file, storing raw file id",
			"thread_id", threadID, "file_id", fileID, "error", err)
		return fileID
	}
	return url
}
