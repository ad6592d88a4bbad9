package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kendall-kelly/support-relay-api/models"
)

// ErrMockGatewayFailure is what a failing MockTelegramService returns
var ErrMockGatewayFailure = errors.New("mock telegram failure")

// GatewayCall is one recorded call to MockTelegramService
type GatewayCall struct {
	Method   string
	ThreadID int64
	Text     string
	ImageURL string
	Label    string
	Status   models.ConversationStatus
}

// MockTelegramService is an in-memory ChannelGateway for testing
type MockTelegramService struct {
	configured   bool
	forumGroupID int64
	failing      map[string]bool
	failAll      bool
	fileURLs     map[string]string
	calls        []GatewayCall
	nextThreadID int64
	nextMsgID    int64
	mu           sync.RWMutex
}

var _ ChannelGateway = (*MockTelegramService)(nil)

// NewMockTelegramService creates a configured mock that accepts events from forumGroupID
func NewMockTelegramService(forumGroupID int64) *MockTelegramService {
	return &MockTelegramService{
		configured:   true,
		forumGroupID: forumGroupID,
		failing:      make(map[string]bool),
		fileURLs:     make(map[string]string),
		nextThreadID: 1000,
		nextMsgID:    5000,
	}
}

// NewUnconfiguredMockTelegramService creates a mock that reports IsConfigured() == false
func NewUnconfiguredMockTelegramService() *MockTelegramService {
	m := NewMockTelegramService(0)
	m.configured = false
	return m
}

// FailOn makes the named method ("CreateThread", "SendText", ...) return an error
func (m *MockTelegramService) FailOn(method string) {
	m.mu.Lock()
	m.failing[method] = true
	m.mu.Unlock()
}

// FailAll makes every method return an error
func (m *MockTelegramService) FailAll() {
	m.mu.Lock()
	m.failAll = true
	m.mu.Unlock()
}

// SetFileURL registers the URL ResolveFileURL returns for fileID
func (m *MockTelegramService) SetFileURL(fileID, url string) {
	m.mu.Lock()
	m.fileURLs[fileID] = url
	m.mu.Unlock()
}

func (m *MockTelegramService) IsConfigured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configured
}

func (m *MockTelegramService) record(call GatewayCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)
	if !m.configured {
		return ErrGatewayNotConfigured
	}
	if m.failAll || m.failing[call.Method] {
		return fmt.Errorf("%s: %w", call.Method, ErrMockGatewayFailure)
	}
	return nil
}

func (m *MockTelegramService) newMessageID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMsgID++
	return m.nextMsgID
}

func (m *MockTelegramService) CreateThread(ctx context.Context, conversationID, displayName, initialText string) (int64, error) {
	if err := m.record(GatewayCall{Method: "CreateThread", Text: initialText, Label: displayName}); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextThreadID++
	return m.nextThreadID, nil
}

func (m *MockTelegramService) SendText(ctx context.Context, threadID int64, text, senderLabel string) (int64, error) {
	if err := m.record(GatewayCall{Method: "SendText", ThreadID: threadID, Text: text, Label: senderLabel}); err != nil {
		return 0, err
	}
	return m.newMessageID(), nil
}

func (m *MockTelegramService) SendImage(ctx context.Context, threadID int64, imageURL, caption, senderLabel string) (int64, error) {
	if err := m.record(GatewayCall{Method: "SendImage", ThreadID: threadID, Text: caption, ImageURL: imageURL, Label: senderLabel}); err != nil {
		return 0, err
	}
	return m.newMessageID(), nil
}

func (m *MockTelegramService) NotifyStatusChange(ctx context.Context, threadID int64, status models.ConversationStatus) error {
	return m.record(GatewayCall{Method: "NotifyStatusChange", ThreadID: threadID, Status: status})
}

func (m *MockTelegramService) CloseThread(ctx context.Context, threadID int64) error {
	return m.record(GatewayCall{Method: "CloseThread", ThreadID: threadID})
}

func (m *MockTelegramService) WarnUnlinkedThread(ctx context.Context, threadID int64) error {
	return m.record(GatewayCall{Method: "WarnUnlinkedThread", ThreadID: threadID})
}

func (m *MockTelegramService) ResolveFileURL(ctx context.Context, fileID string) (string, error) {
	if err := m.record(GatewayCall{Method: "ResolveFileURL", Text: fileID}); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if url, ok := m.fileURLs[fileID]; ok {
		return url, nil
	}
	return "https://files.example.test/" + fileID, nil
}

func (m *MockTelegramService) IsFromTargetChannel(meta EventMeta) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forumGroupID != 0 && meta.ChatID == m.forumGroupID
}

func (m *MockTelegramService) ExtractThreadRef(meta EventMeta) (int64, bool) {
	if meta.ThreadID == nil || *meta.ThreadID == 0 {
		return 0, false
	}
	return *meta.ThreadID, true
}

// Calls returns a copy of every recorded call
func (m *MockTelegramService) Calls() []GatewayCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]GatewayCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallsTo returns the recorded calls of one method
func (m *MockTelegramService) CallsTo(method string) []GatewayCall {
	var out []GatewayCall
	for _, call := range m.Calls() {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// Clear forgets recorded calls and failure settings
func (m *MockTelegramService) Clear() {
	m.mu.Lock()
	m.calls = nil
	m.failing = make(map[string]bool)
	m.failAll = false
	m.mu.Unlock()
}
