package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kendall-kelly/support-relay-api/logger"
	"github.com/kendall-kelly/support-relay-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testChatID int64 = -1001234567890

func newTestRelay(t *testing.T, gateway *MockTelegramService) (*RelayService, *GormConversationStore) {
	store := NewConversationStore(setupTestDB(t))
	return NewRelayService(store, gateway), store
}

func textEvent(threadID int64, text string) *TextEvent {
	return &TextEvent{
		EventMeta: EventMeta{
			UpdateID:  1,
			MessageID: 321,
			ChatID:    testChatID,
			ThreadID:  &threadID,
			FromID:    99,
			FromName:  "Dana",
		},
		Text: text,
	}
}

func countMessages(t *testing.T, store *GormConversationStore, conversationID string) int {
	messages, err := store.ListMessages(context.Background(), conversationID, 0)
	require.NoError(t, err)
	return len(messages)
}

func TestStartConversationWithTelegram(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	result, err := relay.StartConversation(ctx, "anon_1700000000000_ab12xyz", "My tap is leaking")
	require.NoError(t, err)

	conversation := result.Conversation
	assert.Equal(t, models.StatusOpen, conversation.Status)
	require.NotNil(t, conversation.MessageThreadID)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, models.SenderUser, result.Messages[0].SenderType)
	assert.Equal(t, "My tap is leaking", *result.Messages[0].Content)
	assert.Equal(t, models.SenderSystem, result.Messages[1].SenderType)
	assert.Equal(t, "Your message has been forwarded to our support team. We will respond shortly.", *result.Messages[1].Content)

	calls := gateway.CallsTo("CreateThread")
	require.Len(t, calls, 1)
	assert.Equal(t, "Anonymous User", calls[0].Label)
	assert.Equal(t, "My tap is leaking", calls[0].Text)

	// the thread id round-trips through the store
	found, err := store.GetConversationByThreadID(ctx, *conversation.MessageThreadID)
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, found.ID)

	stored, err := store.ListMessages(ctx, conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, models.SenderUser, stored[0].SenderType)
	assert.Equal(t, models.SenderSystem, stored[1].SenderType)
}

func TestStartConversationWithoutTelegram(t *testing.T) {
	gateway := NewUnconfiguredMockTelegramService()
	relay, _ := newTestRelay(t, gateway)

	result, err := relay.StartConversation(context.Background(), "anon_1700000000000_ab12xyz", "My tap is leaking")
	require.NoError(t, err)

	assert.Nil(t, result.Conversation.MessageThreadID)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, "Support system is currently offline. Your message has been saved and will be reviewed.", *result.Messages[1].Content)
	assert.Empty(t, gateway.Calls(), "an unconfigured gateway must never be called")
}

func TestStartConversationTopicCreationFails(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	gateway.FailOn("CreateThread")
	relay, _ := newTestRelay(t, gateway)

	result, err := relay.StartConversation(context.Background(), "anon_1700000000000_ab12xyz", "Hello")
	require.NoError(t, err)

	assert.Nil(t, result.Conversation.MessageThreadID)
	assert.Equal(t, OfflineNotice, *result.Messages[1].Content)
}

func TestStartConversationTrimsMessage(t *testing.T) {
	relay, _ := newTestRelay(t, NewMockTelegramService(testChatID))

	result, err := relay.StartConversation(context.Background(), "anon_1700000000000_ab12xyz", "  Hello there \n")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", result.Conversation.InitialMessage)
	assert.Equal(t, "Hello there", *result.Messages[0].Content)
}

func TestStartConversationValidation(t *testing.T) {
	tests := []struct {
		name        string
		anonymousID string
		message     string
		errContains string
	}{
		{"missing anonymous id", "", "hi", "anonymous_id is required"},
		{"malformed anonymous id", "user-42", "hi", "Invalid anonymous_id format"},
		{"uppercase suffix", "anon_1700000000000_AB12", "hi", "Invalid anonymous_id format"},
		{"empty message", "anon_1_abc", "", "cannot be empty"},
		{"whitespace message", "anon_1_abc", "   ", "cannot be empty"},
		{"too long", "anon_1_abc", string(make([]rune, MaxMessageLength+1)), "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := NewMockTelegramService(testChatID)
			relay, store := newTestRelay(t, gateway)

			_, err := relay.StartConversation(context.Background(), tt.anonymousID, tt.message)
			require.Error(t, err)
			assert.Equal(t, CodeValidation, ErrorCode(err))
			assert.Contains(t, err.Error(), tt.errContains)

			// rejected before reaching the store or gateway
			conversations, listErr := store.ListConversations(context.Background(), tt.anonymousID)
			require.NoError(t, listErr)
			assert.Empty(t, conversations)
			assert.Empty(t, gateway.Calls())
		})
	}
}

func TestStartConversationMessageAtLimit(t *testing.T) {
	relay, _ := newTestRelay(t, NewMockTelegramService(testChatID))

	long := make([]rune, MaxMessageLength)
	for i := range long {
		long[i] = 'é'
	}
	_, err := relay.StartConversation(context.Background(), "anon_1_abc", string(long))
	assert.NoError(t, err, "the limit counts characters, not bytes")
}

func TestSendMessageRelaysText(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)

	message, err := relay.SendMessage(ctx, started.Conversation.ID, SendMessageInput{
		AnonymousID: "anon_1_abc",
		Content:     "  Any update?  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Any update?", *message.Content)
	assert.Nil(t, message.ImageURL)
	require.NotNil(t, message.TelegramMessageID)

	calls := gateway.CallsTo("SendText")
	require.Len(t, calls, 1)
	assert.Equal(t, *started.Conversation.MessageThreadID, calls[0].ThreadID)
	assert.Equal(t, "Any update?", calls[0].Text)
	assert.Equal(t, AnonymousDisplayName, calls[0].Label)

	stored, err := store.ListMessages(ctx, started.Conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, *message.TelegramMessageID, *stored[2].TelegramMessageID)
}

func TestSendMessageRelaysImageWithCaption(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, _ := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)

	message, err := relay.SendMessage(ctx, started.Conversation.ID, SendMessageInput{
		AnonymousID: "anon_1_abc",
		Content:     "here is the leak",
		ImageURL:    "https://cdn.example.com/support-images/leak.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "here is the leak", *message.Content)
	assert.Equal(t, "https://cdn.example.com/support-images/leak.jpg", *message.ImageURL)

	assert.Empty(t, gateway.CallsTo("SendText"))
	calls := gateway.CallsTo("SendImage")
	require.Len(t, calls, 1)
	assert.Equal(t, "https://cdn.example.com/support-images/leak.jpg", calls[0].ImageURL)
	assert.Equal(t, "here is the leak", calls[0].Text)

	imageOnly, err := relay.SendMessage(ctx, started.Conversation.ID, SendMessageInput{
		AnonymousID: "anon_1_abc",
		ImageURL:    "https://cdn.example.com/support-images/2.jpg",
	})
	require.NoError(t, err)
	assert.Nil(t, imageOnly.Content)
	assert.Equal(t, "", gateway.CallsTo("SendImage")[1].Text)
}

func TestSendMessageValidation(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)
	id := started.Conversation.ID

	tests := []struct {
		name         string
		id           string
		input        SendMessageInput
		expectedCode string
	}{
		{"missing anonymous id", id, SendMessageInput{Content: "hi"}, CodeValidation},
		{"bad anonymous id", id, SendMessageInput{AnonymousID: "nope", Content: "hi"}, CodeValidation},
		{"no content or image", id, SendMessageInput{AnonymousID: "anon_1_abc", Content: "   "}, CodeValidation},
		{"too long", id, SendMessageInput{AnonymousID: "anon_1_abc", Content: string(make([]rune, MaxMessageLength+1))}, CodeValidation},
		{"unknown conversation", "00000000-0000-0000-0000-000000000000", SendMessageInput{AnonymousID: "anon_1_abc", Content: "hi"}, CodeNotFound},
		{"not the owner", id, SendMessageInput{AnonymousID: "anon_2_intruder", Content: "hi"}, CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := relay.SendMessage(ctx, tt.id, tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, ErrorCode(err))
		})
	}

	assert.Equal(t, 2, countMessages(t, store, id), "rejected sends must not store anything")
	assert.Empty(t, gateway.CallsTo("SendText"))
}

func TestSendMessageStatusRules(t *testing.T) {
	tests := []struct {
		status  models.ConversationStatus
		allowed bool
	}{
		{models.StatusOpen, true},
		{models.StatusResolved, true},
		{models.StatusClosed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			relay, store := newTestRelay(t, NewMockTelegramService(testChatID))
			ctx := context.Background()

			started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
			require.NoError(t, err)
			status := tt.status
			require.NoError(t, store.UpdateConversation(ctx, started.Conversation.ID, ConversationUpdate{Status: &status}))

			_, err = relay.SendMessage(ctx, started.Conversation.ID, SendMessageInput{AnonymousID: "anon_1_abc", Content: "still there?"})
			if tt.allowed {
				assert.NoError(t, err)
				assert.Equal(t, 3, countMessages(t, store, started.Conversation.ID))
			} else {
				require.Error(t, err)
				assert.Equal(t, CodeClosed, ErrorCode(err))
				assert.Equal(t, "Cannot send messages to a closed conversation", err.Error())
				assert.Equal(t, 2, countMessages(t, store, started.Conversation.ID), "no message row for a closed conversation")
			}
		})
	}
}

func TestReopenedConversationAcceptsMessages(t *testing.T) {
	relay, store := newTestRelay(t, NewMockTelegramService(testChatID))
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)
	id := started.Conversation.ID

	_, err = relay.UpdateStatus(ctx, id, "anon_1_abc", models.StatusClosed)
	require.NoError(t, err)
	_, err = relay.SendMessage(ctx, id, SendMessageInput{AnonymousID: "anon_1_abc", Content: "blocked"})
	assert.Equal(t, CodeClosed, ErrorCode(err))

	reopened, err := relay.UpdateStatus(ctx, id, "anon_1_abc", models.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, reopened.Conversation.Status)

	_, err = relay.SendMessage(ctx, id, SendMessageInput{AnonymousID: "anon_1_abc", Content: "back again"})
	require.NoError(t, err)
	assert.Equal(t, 3, countMessages(t, store, id))
}

func TestSendMessageSurvivesGatewayFailure(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)
	gateway.FailAll()

	for _, input := range []SendMessageInput{
		{AnonymousID: "anon_1_abc", Content: "text"},
		{AnonymousID: "anon_1_abc", ImageURL: "https://cdn.example.com/a.png"},
	} {
		message, err := relay.SendMessage(ctx, started.Conversation.ID, input)
		require.NoError(t, err)
		assert.NotEmpty(t, message.ID)
		assert.Nil(t, message.TelegramMessageID)
	}
	assert.Equal(t, 4, countMessages(t, store, started.Conversation.ID))

	// status changes also succeed with every gateway call failing
	_, err = relay.UpdateStatus(ctx, started.Conversation.ID, "anon_1_abc", models.StatusClosed)
	assert.NoError(t, err)
}

func TestGatewayAlwaysFailing(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	gateway.FailAll()
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)
	assert.Nil(t, started.Conversation.MessageThreadID)

	_, err = relay.SendMessage(ctx, started.Conversation.ID, SendMessageInput{AnonymousID: "anon_1_abc", Content: "again"})
	require.NoError(t, err)
	assert.Equal(t, 3, countMessages(t, store, started.Conversation.ID))
	assert.Empty(t, gateway.CallsTo("SendText"), "without a topic there is nothing to relay to")
}

func TestSendMessageWithoutTopicIsStoredOnly(t *testing.T) {
	gateway := NewUnconfiguredMockTelegramService()
	relay, _ := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)

	message, err := relay.SendMessage(ctx, started.Conversation.ID, SendMessageInput{AnonymousID: "anon_1_abc", Content: "hi"})
	require.NoError(t, err)
	assert.Nil(t, message.TelegramMessageID)
	assert.Empty(t, gateway.Calls())
}

func TestOwnershipIsEnforced(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_owner", "Hello")
	require.NoError(t, err)
	id := started.Conversation.ID
	intruder := "anon_2_intruder"

	_, err = relay.GetConversation(ctx, id, intruder)
	assert.Equal(t, CodeForbidden, ErrorCode(err))

	_, err = relay.SendMessage(ctx, id, SendMessageInput{AnonymousID: intruder, Content: "hi"})
	assert.Equal(t, CodeForbidden, ErrorCode(err))

	_, err = relay.UpdateStatus(ctx, id, intruder, models.StatusClosed)
	assert.Equal(t, CodeForbidden, ErrorCode(err))

	_, err = relay.MarkRead(ctx, id, intruder, []string{started.Messages[1].ID})
	assert.Equal(t, CodeForbidden, ErrorCode(err))

	conversation, err := store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, conversation.Status)
	assert.Equal(t, 2, countMessages(t, store, id))
	assert.Empty(t, gateway.CallsTo("NotifyStatusChange"))

	intruderList, err := relay.ListConversations(ctx, intruder)
	require.NoError(t, err)
	assert.Empty(t, intruderList)
}

func TestGetConversation(t *testing.T) {
	relay, _ := newTestRelay(t, NewMockTelegramService(testChatID))
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)

	owned, err := relay.GetConversation(ctx, started.Conversation.ID, "anon_1_abc")
	require.NoError(t, err)
	assert.Equal(t, started.Conversation.ID, owned.Conversation.ID)
	assert.Len(t, owned.Messages, 2)

	unchecked, err := relay.GetConversation(ctx, started.Conversation.ID, "")
	require.NoError(t, err)
	assert.Len(t, unchecked.Messages, 2)

	_, err = relay.GetConversation(ctx, "00000000-0000-0000-0000-000000000000", "")
	assert.Equal(t, CodeNotFound, ErrorCode(err))
	_, err = relay.GetConversation(ctx, started.Conversation.ID, "bad")
	assert.Equal(t, CodeValidation, ErrorCode(err))
}

func TestUpdateStatusNotifiesTelegram(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, _ := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)
	threadID := *started.Conversation.MessageThreadID

	result, err := relay.UpdateStatus(ctx, started.Conversation.ID, "anon_1_abc", models.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, result.Conversation.Status)
	assert.Len(t, result.Messages, 2)
	assert.Empty(t, gateway.CallsTo("CloseThread"))

	_, err = relay.UpdateStatus(ctx, started.Conversation.ID, "anon_1_abc", models.StatusClosed)
	require.NoError(t, err)

	notices := gateway.CallsTo("NotifyStatusChange")
	require.Len(t, notices, 2)
	assert.Equal(t, models.StatusResolved, notices[0].Status)
	assert.Equal(t, models.StatusClosed, notices[1].Status)
	assert.Equal(t, threadID, notices[1].ThreadID)

	closes := gateway.CallsTo("CloseThread")
	require.Len(t, closes, 1)
	assert.Equal(t, threadID, closes[0].ThreadID)
}

func TestUpdateStatusValidation(t *testing.T) {
	relay, _ := newTestRelay(t, NewMockTelegramService(testChatID))
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)

	_, err = relay.UpdateStatus(ctx, started.Conversation.ID, "anon_1_abc", "")
	assert.Equal(t, CodeValidation, ErrorCode(err))
	_, err = relay.UpdateStatus(ctx, started.Conversation.ID, "anon_1_abc", "archived")
	assert.Equal(t, CodeValidation, ErrorCode(err))
	_, err = relay.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000000", "anon_1_abc", models.StatusClosed)
	assert.Equal(t, CodeNotFound, ErrorCode(err))
}

func TestMarkRead(t *testing.T) {
	relay, store := newTestRelay(t, NewMockTelegramService(testChatID))
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)

	n, err := relay.MarkRead(ctx, started.Conversation.ID, "anon_1_abc", []string{started.Messages[1].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	messages, err := store.ListMessages(ctx, started.Conversation.ID, 0)
	require.NoError(t, err)
	assert.False(t, messages[0].IsRead)
	assert.True(t, messages[1].IsRead)
}

func TestInboundSupportReply(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1700000000000_ab12xyz", "My tap is leaking")
	require.NoError(t, err)
	before, err := store.GetConversation(ctx, started.Conversation.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	result, err := relay.HandleInboundEvent(ctx, textEvent(*started.Conversation.MessageThreadID, "Hi, we can visit Tuesday"))
	require.NoError(t, err)
	assert.Equal(t, "stored", result)

	messages, err := store.ListMessages(ctx, started.Conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	reply := messages[2]
	assert.Equal(t, models.SenderSupport, reply.SenderType)
	assert.Equal(t, "Hi, we can visit Tuesday", *reply.Content)
	assert.Equal(t, "Dana", *reply.SenderName)
	assert.Equal(t, int64(99), *reply.SenderTelegramID)
	require.NotNil(t, reply.TelegramMessageID)
	assert.Equal(t, int64(321), *reply.TelegramMessageID)

	after, err := store.GetConversation(ctx, started.Conversation.ID)
	require.NoError(t, err)
	assert.True(t, after.LastMessageAt.After(before.LastMessageAt))
}

func TestInboundEventFiltering(t *testing.T) {
	thread := int64(4242)
	otherChat := textEvent(thread, "hi")
	otherChat.ChatID = -100999
	botEcho := textEvent(thread, "hi")
	botEcho.FromIsBot = true
	noThread := textEvent(thread, "hi")
	noThread.ThreadID = nil
	sticker := &OtherEvent{EventMeta: textEvent(thread, "").EventMeta}
	noMessage := &OtherEvent{EventMeta: EventMeta{UpdateID: 7}}

	tests := []struct {
		name     string
		event    InboundEvent
		expected string
	}{
		{"other chat", otherChat, "wrong_chat"},
		{"bot echo", botEcho, "bot_message"},
		{"no thread", noThread, "no_thread"},
		{"sticker", sticker, "empty"},
		{"no message", noMessage, "ignored"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := NewMockTelegramService(testChatID)
			relay, store := newTestRelay(t, gateway)
			ctx := context.Background()

			conversation, err := store.CreateConversation(ctx, "anon_1_abc", "Hello")
			require.NoError(t, err)
			require.NoError(t, store.UpdateConversation(ctx, conversation.ID, ConversationUpdate{MessageThreadID: &thread}))

			result, err := relay.HandleInboundEvent(ctx, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
			assert.Equal(t, 0, countMessages(t, store, conversation.ID))
			assert.Empty(t, gateway.Calls())
		})
	}
}

func TestInboundUnknownThreadPostsWarning(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, _ := newTestRelay(t, gateway)

	result, err := relay.HandleInboundEvent(context.Background(), textEvent(777, "hello?"))
	require.NoError(t, err)
	assert.Equal(t, "unknown_thread", result)

	warnings := gateway.CallsTo("WarnUnlinkedThread")
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(777), warnings[0].ThreadID)

	// a failing warning post is still not an error
	gateway.FailAll()
	result, err = relay.HandleInboundEvent(context.Background(), textEvent(777, "hello?"))
	require.NoError(t, err)
	assert.Equal(t, "unknown_thread", result)
}

func TestInboundPhoto(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	gateway.SetFileURL("big-file", "https://files.example.test/photos/big.jpg")
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)
	threadID := *started.Conversation.MessageThreadID

	event := &PhotoEvent{EventMeta: textEvent(threadID, "").EventMeta, FileID: "big-file", Caption: "this one"}
	result, err := relay.HandleInboundEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, "stored", result)

	messages, err := store.ListMessages(ctx, started.Conversation.ID, 0)
	require.NoError(t, err)
	reply := messages[len(messages)-1]
	assert.Equal(t, "https://files.example.test/photos/big.jpg", *reply.ImageURL)
	assert.Equal(t, "this one", *reply.Content)
}

func TestInboundPhotoFallsBackToFileID(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay, store := newTestRelay(t, gateway)
	ctx := context.Background()

	started, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	require.NoError(t, err)
	gateway.FailOn("ResolveFileURL")

	event := &PhotoEvent{EventMeta: textEvent(*started.Conversation.MessageThreadID, "").EventMeta, FileID: "raw-file-id"}
	result, err := relay.HandleInboundEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, "stored", result)

	messages, err := store.ListMessages(ctx, started.Conversation.ID, 0)
	require.NoError(t, err)
	reply := messages[len(messages)-1]
	assert.Equal(t, "raw-file-id", *reply.ImageURL)
	assert.Nil(t, reply.Content)
}

// failingStore breaks every read so store errors can be observed
type failingStore struct {
	ConversationStore
}

var errStoreDown = errors.New("database is down")

func (failingStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return nil, errStoreDown
}

func (failingStore) GetConversationByThreadID(ctx context.Context, threadID int64) (*models.Conversation, error) {
	return nil, errStoreDown
}

func (failingStore) CreateConversation(ctx context.Context, anonymousID, initialMessage string) (*models.Conversation, error) {
	return nil, errStoreDown
}

func TestStoreErrorsSurface(t *testing.T) {
	gateway := NewMockTelegramService(testChatID)
	relay := NewRelayService(failingStore{}, gateway)
	ctx := context.Background()

	_, err := relay.StartConversation(ctx, "anon_1_abc", "Hello")
	assert.Equal(t, CodeDatabase, ErrorCode(err))
	assert.ErrorIs(t, err, errStoreDown)

	_, err = relay.SendMessage(ctx, "00000000-0000-0000-0000-000000000000", SendMessageInput{AnonymousID: "anon_1_abc", Content: "hi"})
	assert.Equal(t, CodeDatabase, ErrorCode(err))

	result, err := relay.HandleInboundEvent(ctx, textEvent(5, "hi"))
	assert.Error(t, err)
	assert.Equal(t, "failed", result)
	assert.Empty(t, gateway.Calls())
}

// unlinkableStore cannot record a conversation's forum topic
type unlinkableStore struct {
	*GormConversationStore
}

func (unlinkableStore) UpdateConversation(ctx context.Context, id string, update ConversationUpdate) error {
	return errStoreDown
}

func TestStartConversationLogsUnlinkedTopic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger.SetLogger(zap.New(core))
	defer logger.SetLogger(zap.NewNop())

	gateway := NewMockTelegramService(testChatID)
	store := NewConversationStore(setupTestDB(t))
	relay := NewRelayService(unlinkableStore{store}, gateway)

	_, err := relay.StartConversation(context.Background(), "anon_1_abc", "Hello")
	assert.Equal(t, CodeDatabase, ErrorCode(err))

	entries := logs.FilterMessage("Support topic created but not linked to its conversation").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.NotEmpty(t, fields["conversation_id"])
	assert.NotZero(t, fields["thread_id"])
}
