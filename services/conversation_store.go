package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/support-relay-api/models"
	"gorm.io/gorm"
)

// DefaultMessageLimit bounds how many messages are returned for one conversation
const DefaultMessageLimit = 100

// ConversationUpdate carries the mutable conversation fields; nil fields are left untouched
type ConversationUpdate struct {
	MessageThreadID *int64
	Status          *models.ConversationStatus
}

// ConversationStore is the durable record of support conversations and their messages
type ConversationStore interface {
	CreateConversation(ctx context.Context, anonymousID, initialMessage string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByThreadID(ctx context.Context, threadID int64) (*models.Conversation, error)
	ListConversations(ctx context.Context, anonymousID string) ([]models.Conversation, error)
	UpdateConversation(ctx context.Context, id string, update ConversationUpdate) error
	CreateMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	AttachExternalRef(ctx context.Context, messageID string, telegramMessageID int64) error
	MarkMessagesRead(ctx context.Context, conversationID string, messageIDs []string) (int64, error)
}

// GormConversationStore implements ConversationStore on top of gorm
type GormConversationStore struct {
	db *gorm.DB
}

// NewConversationStore creates a store backed by db
func NewConversationStore(db *gorm.DB) *GormConversationStore {
	return &GormConversationStore{db: db}
}

// CreateConversation inserts an open conversation with no forum topic
func (s *GormConversationStore) CreateConversation(ctx context.Context, anonymousID, initialMessage string) (*models.Conversation, error) {
	if strings.TrimSpace(initialMessage) == "" {
		return nil, validationError("initial_message cannot be empty")
	}

	conversation := &models.Conversation{
		AnonymousID:    anonymousID,
		InitialMessage: initialMessage,
		Status:         models.StatusOpen,
		LastMessageAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// GetConversation loads a conversation by id
func (s *GormConversationStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conversation, nil
}

// GetConversationByThreadID resolves the conversation linked to a forum topic
func (s *GormConversationStore) GetConversationByThreadID(ctx context.Context, threadID int64) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := s.db.WithContext(ctx).Where("message_thread_id = ?", threadID).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation by thread id: %w", err)
	}
	return &conversation, nil
}

// ListConversations returns a visitor's conversations, most recently active first
func (s *GormConversationStore) ListConversations(ctx context.Context, anonymousID string) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	if err := s.db.WithContext(ctx).
		Where("anonymous_id = ?", anonymousID).
		Order("last_message_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// UpdateConversation applies update to a conversation.
// The thread id is only written while the column is still NULL, so a second
// writer gets ErrThreadAlreadyAssigned instead of silently replacing the topic.
func (s *GormConversationStore) UpdateConversation(ctx context.Context, id string, update ConversationUpdate) error {
	db := s.db.WithContext(ctx)

	if update.MessageThreadID != nil {
		result := db.Model(&models.Conversation{}).
			Where("id = ? AND message_thread_id IS NULL", id).
			Update("message_thread_id", *update.MessageThreadID)
		if result.Error != nil {
			return fmt.Errorf("failed to set conversation thread id: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			if _, err := s.GetConversation(ctx, id); err != nil {
				return err
			}
			return ErrThreadAlreadyAssigned
		}
	}

	if update.Status != nil {
		if !update.Status.Valid() {
			return validationError("Invalid status value")
		}
		result := db.Model(&models.Conversation{}).
			Where("id = ?", id).
			Update("status", *update.Status)
		if result.Error != nil {
			return fmt.Errorf("failed to update conversation status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}
	}

	return nil
}

// CreateMessage stores message and advances the parent conversation's
// last_message_at in the same transaction.
func (s *GormConversationStore) CreateMessage(ctx context.Context, message *models.Message) error {
	if !message.HasContent() && !message.HasImage() {
		return validationError("Either content or image_url is required")
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			Update("last_message_at", message.CreatedAt)
		if result.Error != nil {
			return fmt.Errorf("failed to touch conversation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}

		if err := tx.Omit("Conversation").Create(message).Error; err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		return nil
	})
}

// ListMessages returns up to limit messages in creation order
func (s *GormConversationStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > DefaultMessageLimit {
		limit = DefaultMessageLimit
	}

	messages := []models.Message{}
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// AttachExternalRef records the Telegram message id a stored message corresponds to
func (s *GormConversationStore) AttachExternalRef(ctx context.Context, messageID string, telegramMessageID int64) error {
	result := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Update("telegram_message_id", telegramMessageID)
	if result.Error != nil {
		return fmt.Errorf("failed to update telegram message id: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %s not found", messageID)
	}
	return nil
}

// MarkMessagesRead flags the given messages of a conversation as read and
// returns how many rows changed. Ids belonging to other conversations are ignored.
func (s *GormConversationStore) MarkMessagesRead(ctx context.Context, conversationID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND id IN ? AND is_read = ?", conversationID, messageIDs, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark messages as read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
