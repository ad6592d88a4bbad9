package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	appConfig "github.com/kendall-kelly/support-relay-api/config"
	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/metrics"
	"github.com/kendall-kelly/support-relay-api/models"
	"github.com/kendall-kelly/support-relay-api/utils"
)

const (
	topicPrefix        = "🎫 "
	maxTopicNameLength = 128
	topicPreviewLength = 50
	topicIconColor     = 0x6FB9F0

	unlinkedThreadWarning = "⚠️ <b>Warning:</b> This topic is not linked to any active conversation."
)

var statusEmoji = map[models.ConversationStatus]string{
	models.StatusOpen:     "🔵",
	models.StatusResolved: "✅",
	models.StatusClosed:   "🔒",
}

// ChannelGateway is the relay's view of the external support channel
type ChannelGateway interface {
	IsConfigured() bool

	// CreateThread opens a forum topic for a conversation and posts the
	// initial text as its first message
	CreateThread(ctx context.Context, conversationID, displayName, initialText string) (int64, error)

	SendText(ctx context.Context, threadID int64, text, senderLabel string) (int64, error)
	SendImage(ctx context.Context, threadID int64, imageURL, caption, senderLabel string) (int64, error)
	NotifyStatusChange(ctx context.Context, threadID int64, status models.ConversationStatus) error
	CloseThread(ctx context.Context, threadID int64) error
	WarnUnlinkedThread(ctx context.Context, threadID int64) error

	// ResolveFileURL turns a Telegram file id into a downloadable URL
	ResolveFileURL(ctx context.Context, fileID string) (string, error)

	IsFromTargetChannel(meta EventMeta) bool
	ExtractThreadRef(meta EventMeta) (int64, bool)
}

// TelegramService talks to the Telegram Bot API for a single forum supergroup
type TelegramService struct {
	client       *resty.Client
	baseURL      string
	botToken     string
	forumGroupID string

	// mirror receives copies of inbound files, see MirrorFilesTo
	mirror ObjectStorage
}

var _ ChannelGateway = (*TelegramService)(nil)

// NewTelegramService builds the gateway from configuration. A service built
// without credentials reports IsConfigured() == false and rejects every call.
func NewTelegramService(cfg *appConfig.Config) *TelegramService {
	baseURL := strings.TrimRight(cfg.TelegramAPIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.TelegramHTTPTimeout).
		SetHeader("Content-Type", "application/json")

	service := &TelegramService{
		client:       client,
		baseURL:      baseURL,
		botToken:     cfg.TelegramBotToken,
		forumGroupID: cfg.TelegramForumGroupID,
	}
	if !service.IsConfigured() {
		logger.Warnw("Telegram service not configured, support messages will only be stored locally",
			"bot_token_set", cfg.TelegramBotToken != "",
			"forum_group_set", cfg.TelegramForumGroupID != "",
		)
	}
	return service
}

// IsConfigured reports whether both the bot token and the forum group are known
func (s *TelegramService) IsConfigured() bool {
	return s.botToken != "" && s.forumGroupID != ""
}

// apiResponse is the envelope every Bot API method answers with
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type forumTopic struct {
	MessageThreadID int64  `json:"message_thread_id"`
	Name            string `json:"name"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

type telegramFile struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// WebhookInfo is the result of getWebhookInfo
type WebhookInfo struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	LastErrorDate        int64    `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}

// call invokes one Bot API method and decodes its result into out (if non-nil)
func (s *TelegramService) call(ctx context.Context, method string, body interface{}, out interface{}) (err error) {
	defer func() { metrics.ObserveGatewayCall(method, err) }()

	if !s.IsConfigured() {
		return ErrGatewayNotConfigured
	}

	var envelope apiResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&envelope).
		SetError(&envelope).
		Post(fmt.Sprintf("/bot%s/%s", s.botToken, method))
	if err != nil {
		return s.transportError(method, err)
	}

	if resp.IsError() || !envelope.OK {
		description := envelope.Description
		if description == "" {
			description = resp.Status()
		}
		return fmt.Errorf("telegram %s: %s", method, description)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram %s: invalid result: %w", method, err)
		}
	}
	return nil
}

// transportError wraps a failed request without its URL, which carries the bot token
func (s *TelegramService) transportError(method string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if s.botToken != "" && strings.Contains(err.Error(), s.botToken) {
		return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), s.botToken, "<redacted>"))
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

// CreateThread creates a forum topic and posts the new ticket message into it
func (s *TelegramService) CreateThread(ctx context.Context, conversationID, displayName, initialText string) (int64, error) {
	var topic forumTopic
	err := s.call(ctx, "createForumTopic", map[string]interface{}{
		"chat_id":    s.forumGroupID,
		"name":       buildTopicName(displayName, initialText),
		"icon_color": topicIconColor,
	}, &topic)
	if err != nil {
		return 0, err
	}
	if topic.MessageThreadID == 0 {
		return 0, fmt.Errorf("telegram createForumTopic: response without message_thread_id")
	}

	logger.Infow("Created support topic",
		"conversation_id", conversationID,
		"thread_id", topic.MessageThreadID,
	)

	if _, err := s.sendHTML(ctx, topic.MessageThreadID, formatNewTicketMessage(displayName, initialText)); err != nil {
		return 0, err
	}
	return topic.MessageThreadID, nil
}

// SendText posts text into a topic. With a sender label the text is shown as
// "👤 label:" followed by the message.
func (s *TelegramService) SendText(ctx context.Context, threadID int64, text, senderLabel string) (int64, error) {
	return s.sendHTML(ctx, threadID, formatUserMessage(senderLabel, text))
}

// SendImage posts a photo by URL with an optional caption
func (s *TelegramService) SendImage(ctx context.Context, threadID int64, imageURL, caption, senderLabel string) (int64, error) {
	body := map[string]interface{}{
		"chat_id":           s.forumGroupID,
		"message_thread_id": threadID,
		"photo":             imageURL,
		"parse_mode":        "HTML",
	}
	if caption != "" {
		body["caption"] = formatUserMessage(senderLabel, caption)
	}

	var sent sentMessage
	if err := s.call(ctx, "sendPhoto", body, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// NotifyStatusChange posts a status notice such as "✅ Conversation RESOLVED"
func (s *TelegramService) NotifyStatusChange(ctx context.Context, threadID int64, status models.ConversationStatus) error {
	_, err := s.sendHTML(ctx, threadID, formatStatusNotice(status))
	return err
}

// CloseThread closes the forum topic
func (s *TelegramService) CloseThread(ctx context.Context, threadID int64) error {
	return s.call(ctx, "closeForumTopic", map[string]interface{}{
		"chat_id":           s.forumGroupID,
		"message_thread_id": threadID,
	}, nil)
}

// WarnUnlinkedThread tells the support team a topic has no conversation behind it
func (s *TelegramService) WarnUnlinkedThread(ctx context.Context, threadID int64) error {
	_, err := s.sendHTML(ctx, threadID, unlinkedThreadWarning)
	return err
}

// MirrorFilesTo makes ResolveFileURL copy files into storage and return the
// storage URL instead of a Telegram download URL
func (s *TelegramService) MirrorFilesTo(storage ObjectStorage) {
	s.mirror = storage
}

// ResolveFileURL looks up a file's path and returns a URL visitors can fetch.
// Without a mirror the URL is Telegram's download URL, which embeds the bot token.
func (s *TelegramService) ResolveFileURL(ctx context.Context, fileID string) (string, error) {
	var file telegramFile
	if err := s.call(ctx, "getFile", map[string]interface{}{"file_id": fileID}, &file); err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("telegram getFile: no file_path for %s", fileID)
	}
	if s.mirror == nil {
		return fmt.Sprintf("%s/file/bot%s/%s", s.baseURL, s.botToken, file.FilePath), nil
	}
	return s.mirrorFile(ctx, file.FilePath)
}

// mirrorFile downloads a file from Telegram and stores it as
// support-images/telegram_<epoch-millis>_<random>.<ext>
func (s *TelegramService) mirrorFile(ctx context.Context, filePath string) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/file/bot%s/%s", s.botToken, filePath))
	if err != nil {
		return "", s.transportError("file download", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("telegram file download: %s", resp.Status())
	}

	body := resp.Body()
	detected := mimetype.Detect(body)
	key := fmt.Sprintf("%stelegram_%d_%s%s", SupportImagePrefix, time.Now().UnixMilli(), utils.RandomAlnum(11), detected.Extension())
	if err := s.mirror.PutObject(ctx, key, detected.String(), body); err != nil {
		return "", fmt.Errorf("failed to mirror telegram file: %w", err)
	}
	return s.mirror.PublicURL(key), nil
}

// IsFromTargetChannel reports whether the event was posted in the support forum group
func (s *TelegramService) IsFromTargetChannel(meta EventMeta) bool {
	return s.forumGroupID != "" && strconv.FormatInt(meta.ChatID, 10) == s.forumGroupID
}

// ExtractThreadRef returns the forum topic the event was posted in
func (s *TelegramService) ExtractThreadRef(meta EventMeta) (int64, bool) {
	if meta.ThreadID == nil || *meta.ThreadID == 0 {
		return 0, false
	}
	return *meta.ThreadID, true
}

// SetWebhook points Telegram at webhookURL, asking it to send secret in the
// X-Telegram-Bot-Api-Secret-Token header and only deliver messages.
func (s *TelegramService) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	body := map[string]interface{}{
		"url":             webhookURL,
		"allowed_updates": []string{"message"},
	}
	if secret != "" {
		body["secret_token"] = secret
	}
	return s.call(ctx, "setWebhook", body, nil)
}

// GetWebhookInfo returns the currently registered webhook
func (s *TelegramService) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := s.call(ctx, "getWebhookInfo", map[string]interface{}{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *TelegramService) sendHTML(ctx context.Context, threadID int64, html string) (int64, error) {
	var sent sentMessage
	err := s.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id":           s.forumGroupID,
		"message_thread_id": threadID,
		"text":              html,
		"parse_mode":        "HTML",
	}, &sent)
	if err != nil {
		return 0, err
	}
	if sent.MessageID == 0 {
		return 0, fmt.Errorf("telegram sendMessage: response without message_id")
	}
	return sent.MessageID, nil
}

// buildTopicName renders "🎫 <name> - <preview>" within Telegram's 128 character limit
func buildTopicName(displayName, initialText string) string {
	preview := strings.Join(strings.Fields(initialText), " ")
	if runeLen(preview) > topicPreviewLength {
		preview = truncateRunes(preview, topicPreviewLength-3) + "..."
	}

	name := fmt.Sprintf("%s%s - %s", topicPrefix, displayName, preview)
	if runeLen(name) <= maxTopicNameLength {
		return name
	}

	// Long display names eat into the preview, which keeps at least 10 characters
	available := maxTopicNameLength - runeLen(topicPrefix) - runeLen(displayName) - 3
	preview = truncateRunes(strings.Join(strings.Fields(initialText), " "), max(available-3, 10)) + "..."
	name = fmt.Sprintf("%s%s - %s", topicPrefix, displayName, preview)
	return truncateRunes(name, maxTopicNameLength)
}

func formatNewTicketMessage(displayName, text string) string {
	return fmt.Sprintf(
		"<b>🆕 New Support Ticket</b>\n\n<b>From:</b> %s\n<b>Message:</b>\n%s\n\n<i>Reply to this message to respond to the user.</i>",
		utils.EscapeHTML(displayName), utils.EscapeHTML(strings.TrimSpace(text)),
	)
}

func formatUserMessage(senderLabel, text string) string {
	text = utils.EscapeHTML(strings.TrimSpace(text))
	if senderLabel == "" {
		return text
	}
	return fmt.Sprintf("<b>👤 %s:</b>\n%s", utils.EscapeHTML(senderLabel), text)
}

func formatStatusNotice(status models.ConversationStatus) string {
	return fmt.Sprintf("%s <b>Conversation %s</b>", statusEmoji[status], strings.ToUpper(string(status)))
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
