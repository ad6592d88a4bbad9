package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SenderType identifies who authored a support message
type SenderType string

const (
	SenderUser    SenderType = "user"    // the anonymous visitor
	SenderSupport SenderType = "support" // a human replying from Telegram
	SenderSystem  SenderType = "system"  // relay generated notices
)

// Message represents a single message in a support conversation
type Message struct {
	ID                string       `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID    string       `gorm:"type:varchar(36);not null;index" json:"conversation_id"` // foreign key to support_conversations
	Conversation      Conversation `gorm:"foreignKey:ConversationID" json:"-"`
	SenderType        SenderType   `gorm:"type:varchar(16);not null" json:"sender_type"`
	SenderName        *string      `json:"sender_name"`        // support messages only
	SenderTelegramID  *int64       `json:"sender_telegram_id"` // support messages only
	Content           *string      `gorm:"type:text" json:"content"`
	ImageURL          *string      `gorm:"type:text" json:"image_url"`
	TelegramMessageID *int64       `json:"telegram_message_id"` // nullable, set after a successful relay step
	IsRead            bool         `gorm:"not null;default:false" json:"is_read"`
	ReadAt            *time.Time   `json:"read_at"`
	CreatedAt         time.Time    `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "support_messages"
}

// BeforeCreate assigns the message id
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// HasContent reports whether the message carries non-empty text
func (m *Message) HasContent() bool {
	return m.Content != nil && *m.Content != ""
}

// HasImage reports whether the message carries an image reference
func (m *Message) HasImage() bool {
	return m.ImageURL != nil && *m.ImageURL != ""
}
