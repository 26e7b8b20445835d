package server

import (
	"errors"
	"fmt"
)

// ChatError is an application error reported to the originating connection
// as an error event. The socket stays open.
type ChatError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ChatError) Error() string {
	return e.Message
}

var (
	ErrNotAuthenticated   = &ChatError{Code: "not_authenticated", Message: "not authenticated"}
	ErrInvalidUser        = &ChatError{Code: "invalid_user", Message: "invalid user"}
	ErrAdminRequired      = &ChatError{Code: "admin_required", Message: "admin access required"}
	ErrSessionNotFound    = &ChatError{Code: "session_not_found", Message: "session not found"}
	ErrSessionMismatch    = &ChatError{Code: "session_mismatch", Message: "session mismatch"}
	ErrSessionClosed      = &ChatError{Code: "session_closed", Message: "session closed"}
	ErrNoActiveSession    = &ChatError{Code: "no_active_session", Message: "no active session"}
	ErrUnknownMessageType = &ChatError{Code: "unknown_message_type", Message: "unknown message type"}
	ErrInvalidMessage     = &ChatError{Code: "invalid_message", Message: "invalid message format"}
	ErrPersistence        = &ChatError{Code: "internal_error", Message: "internal server error"}
	ErrServiceUnavailable = &ChatError{Code: "service_unavailable", Message: "service unavailable"}
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func invalidMessage(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, detail)
}

// errorPayload converts err into the body of an error event. Persistence
// details are kept out of the client-facing message.
func errorPayload(err error) *ChatError {
	var ce *ChatError
	if !errors.As(err, &ce) {
		return &ChatError{Code: ErrPersistence.Code, Message: ErrPersistence.Message}
	}
	if ce == ErrPersistence {
		return &ChatError{Code: ce.Code, Message: ce.Message}
	}

	return &ChatError{Code: ce.Code, Message: err.Error()}
}
