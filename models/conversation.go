package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationStatus is the lifecycle state of a support conversation
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusResolved ConversationStatus = "resolved"
	StatusClosed   ConversationStatus = "closed"
)

// Valid reports whether s is one of the known statuses
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// AcceptsMessages reports whether visitors may still post into a conversation in this status
func (s ConversationStatus) AcceptsMessages() bool {
	return s != StatusClosed
}

// Conversation is a support thread started by an anonymous website visitor.
// MessageThreadID links it to a Telegram forum topic once one has been created.
type Conversation struct {
	ID              string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	AnonymousID     string             `gorm:"not null;index:idx_conversations_anonymous_last,priority:1" json:"anonymous_id"`
	MessageThreadID *int64             `gorm:"uniqueIndex" json:"message_thread_id"` // nullable, set once the forum topic exists
	Status          ConversationStatus `gorm:"type:varchar(16);not null;default:'open'" json:"status"`
	InitialMessage  string             `gorm:"type:text;not null" json:"initial_message"`
	LastMessageAt   time.Time          `gorm:"not null;index:idx_conversations_anonymous_last,priority:2,sort:desc" json:"last_message_at"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// TableName specifies the table name for the Conversation model
func (Conversation) TableName() string {
	return "support_conversations"
}

// BeforeCreate assigns the conversation id and initial timestamps
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusOpen
	}
	if c.LastMessageAt.IsZero() {
		c.LastMessageAt = time.Now()
	}
	return nil
}

// HasThread reports whether the conversation has reached the support channel
func (c *Conversation) HasThread() bool {
	return c.MessageThreadID != nil
}

// AutoMigrate creates or updates the support tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Conversation{}, &Message{})
}
