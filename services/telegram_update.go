package services

import (
	"encoding/json"
	"fmt"
)

// Update is the subset of a Telegram Bot API update the relay reads
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message,omitempty"`
}

// TelegramMessage is a message posted in a chat
type TelegramMessage struct {
	MessageID       int64         `json:"message_id"`
	MessageThreadID int64         `json:"message_thread_id,omitempty"`
	From            *TelegramUser `json:"from,omitempty"`
	Chat            TelegramChat  `json:"chat"`
	Date            int64         `json:"date"`
	Text            string        `json:"text,omitempty"`
	Caption         string        `json:"caption,omitempty"`
	Photo           []PhotoSize   `json:"photo,omitempty"`
}

type TelegramUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type TelegramChat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// PhotoSize is one resolution of a posted photo. Telegram lists them smallest first.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// EventMeta is what every inbound event carries regardless of its payload
type EventMeta struct {
	UpdateID  int64
	MessageID int64 // 0 when the update carried no message at all
	ChatID    int64
	ThreadID  *int64
	FromID    int64
	FromName  string
	FromIsBot bool
}

// InboundEvent is one decoded webhook delivery: a *TextEvent, *PhotoEvent or *OtherEvent
type InboundEvent interface {
	Meta() EventMeta
}

// TextEvent is a plain text message
type TextEvent struct {
	EventMeta
	Text string
}

// PhotoEvent is a photo with an optional caption. FileID refers to the largest size.
type PhotoEvent struct {
	EventMeta
	FileID  string
	Caption string
}

// OtherEvent is anything the relay does not store: stickers, service messages,
// non-message updates.
type OtherEvent struct {
	EventMeta
}

func (e *TextEvent) Meta() EventMeta  { return e.EventMeta }
func (e *PhotoEvent) Meta() EventMeta { return e.EventMeta }
func (e *OtherEvent) Meta() EventMeta { return e.EventMeta }

// ParseUpdate decodes a raw webhook body into a typed event
func ParseUpdate(body []byte) (InboundEvent, error) {
	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("invalid telegram update: %w", err)
	}
	return EventFromUpdate(&update), nil
}

// EventFromUpdate classifies an already decoded update
func EventFromUpdate(update *Update) InboundEvent {
	meta := EventMeta{UpdateID: update.UpdateID}

	msg := update.Message
	if msg == nil {
		return &OtherEvent{EventMeta: meta}
	}

	meta.MessageID = msg.MessageID
	meta.ChatID = msg.Chat.ID
	if msg.MessageThreadID != 0 {
		threadID := msg.MessageThreadID
		meta.ThreadID = &threadID
	}
	if msg.From != nil {
		meta.FromID = msg.From.ID
		meta.FromName = msg.From.FirstName
		meta.FromIsBot = msg.From.IsBot
	}

	switch {
	case len(msg.Photo) > 0:
		return &PhotoEvent{
			EventMeta: meta,
			FileID:    msg.Photo[len(msg.Photo)-1].FileID,
			Caption:   msg.Caption,
		}
	case msg.Text != "":
		return &TextEvent{EventMeta: meta, Text: msg.Text}
	case msg.Caption != "":
		// documents and videos: keep the caption, drop the attachment
		return &TextEvent{EventMeta: meta, Text: msg.Caption}
	default:
		return &OtherEvent{EventMeta: meta}
	}
}
