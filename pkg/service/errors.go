// Typed errors shared by the coaching services. Each kind maps to one HTTP
// status and machine-readable code; handlers dispatch on the kind instead of
// on concrete error types.
package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrPersonalityNotFound  = errors.New("personality not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrVectorStoreDisabled  = errors.New("vector store is disabled")
	ErrEmbedderNotAvailable = errors.New("no embedding function available")
)

// ErrorKind is the closed set of user-actionable failure kinds.
type ErrorKind string

const (
	ErrKindRateLimitExceeded    ErrorKind = "rate_limit_exceeded"
	ErrKindActiveSessionExists  ErrorKind = "active_session_exists"
	ErrKindAgentNotConfigured   ErrorKind = "agent_not_configured"
	ErrKindConversationNotFound ErrorKind = "conversation_not_found"
	ErrKindExternalPlatform     ErrorKind = "external_platform_error"
)

// HTTPStatus maps an error kind to its response status.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrKindRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrKindActiveSessionExists:
		return http.StatusConflict
	case ErrKindAgentNotConfigured:
		return http.StatusServiceUnavailable
	case ErrKindConversationNotFound:
		return http.StatusNotFound
	case ErrKindExternalPlatform:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CoachError is a typed failure with an optional payload. ResetAt is set for
// rate-limit errors; Op describes the external operation for platform errors.
type CoachError struct {
	Kind    ErrorKind
	Message string
	ResetAt *time.Time
	Op      string
	Err     error
}

func (e *CoachError) Error() string {
	if e.Op != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Message, e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoachError) Unwrap() error {
	return e.Err
}

// AsCoachError extracts a CoachError from an error chain.
func AsCoachError(err error) (*CoachError, bool) {
	var ce *CoachError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// NewRateLimitError reports an exhausted usage window.
func NewRateLimitError(action string, resetAt time.Time) *CoachError {
	return &CoachError{
		Kind:    ErrKindRateLimitExceeded,
		Message: fmt.Sprintf("rate limit exceeded for %s", action),
		ResetAt: &resetAt,
	}
}

// NewActiveSessionError reports that the user already has an unexpired
// active session.
func NewActiveSessionError(sessionID string) *CoachError {
	return &CoachError{
		Kind:    ErrKindActiveSessionExists,
		Message: "an active coaching session already exists",
		Op:      sessionID,
	}
}

// NewAgentNotConfiguredError is the terminal failure of personality
// resolution: no personality agent and no environment fallback.
func NewAgentNotConfiguredError(err error) *CoachError {
	return &CoachError{
		Kind:    ErrKindAgentNotConfigured,
		Message: "no conversational agent is configured",
		Err:     err,
	}
}

// NewConversationNotFoundError covers both missing ids and ids owned by a
// different user; the two are indistinguishable to the caller.
func NewConversationNotFoundError(conversationID string) *CoachError {
	return &CoachError{
		Kind:    ErrKindConversationNotFound,
		Message: "conversation not found",
		Op:      conversationID,
	}
}

// NewExternalPlatformError wraps an upstream provider failure with the
// operation that failed.
func NewExternalPlatformError(op string, err error) *CoachError {
	return &CoachError{
		Kind:    ErrKindExternalPlatform,
		Message: "voice platform request failed",
		Op:      op,
		Err:     err,
	}
}
