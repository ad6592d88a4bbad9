package services

import (
	"errors"
	"fmt"
)

// Error codes returned to API clients
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeForbidden  = "FORBIDDEN"
	CodeNotFound   = "CONVERSATION_NOT_FOUND"
	CodeClosed     = "CONVERSATION_CLOSED"
	CodeDatabase   = "DATABASE_ERROR"
)

var (
	// ErrConversationNotFound is returned by the store when no conversation matches
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrThreadAlreadyAssigned is returned when a conversation already has a forum topic
	ErrThreadAlreadyAssigned = errors.New("conversation already has a message thread")

	// ErrGatewayNotConfigured is returned by every gateway call made without credentials
	ErrGatewayNotConfigured = errors.New("telegram service not configured")
)

// RelayError is a client-facing failure of a support operation
type RelayError struct {
	Code    string
	Message string
	Err     error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func validationError(message string) *RelayError {
	return &RelayError{Code: CodeValidation, Message: message}
}

func forbiddenError() *RelayError {
	return &RelayError{Code: CodeForbidden, Message: "Access denied to this conversation"}
}

func notFoundError() *RelayError {
	return &RelayError{Code: CodeNotFound, Message: "Conversation not found", Err: ErrConversationNotFound}
}

func closedError() *RelayError {
	return &RelayError{Code: CodeClosed, Message: "Cannot send messages to a closed conversation"}
}

func databaseError(message string, err error) *RelayError {
	return &RelayError{Code: CodeDatabase, Message: message, Err: err}
}

// ErrorCode extracts the RelayError code from err, or CodeDatabase for anything else
func ErrorCode(err error) string {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Code
	}
	return CodeDatabase
}
