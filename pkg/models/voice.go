// API request/response types for the voice-coach endpoints.
package models

import (
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
)

// CreateSessionRequest starts a new coaching session
type CreateSessionRequest struct {
	PersonalityID string `json:"personalityId,omitempty"`
	Context       string `json:"context,omitempty"` // optional free-text focus for a dynamic build
}

// CreateSessionResponse returns the created session and its context snapshot
type CreateSessionResponse struct {
	SessionID string       `json:"sessionId"`
	AgentID   string       `json:"agentId"`
	Context   *UserContext `json:"context"`
}

// SignedURLResponse carries a time-boxed connection credential.
// ExpiresAt is a client-visible approximation; the platform controls the
// real expiry.
type SignedURLResponse struct {
	SignedURL string    `json:"signedUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SaveConversationRequest persists a finished conversation
type SaveConversationRequest struct {
	ConversationID string                 `json:"conversationId" binding:"required"`
	Transcript     []db.TranscriptMessage `json:"transcript"`
	Duration       int                    `json:"duration"`
	StartedAt      time.Time              `json:"startedAt"`
	EndedAt        time.Time              `json:"endedAt"`
	Summary        string                 `json:"summary,omitempty"`
}

// SaveConversationResponse acknowledges a saved conversation
type SaveConversationResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// HistoryResponse lists stored conversations
type HistoryResponse struct {
	Conversations []db.Conversation `json:"conversations"`
	Total         int               `json:"total"`
}

// ChatRequest is a streaming text-coaching request
type ChatRequest struct {
	Message       string     `json:"message" binding:"required"`
	PersonalityID string     `json:"personalityId,omitempty"`
	History       []ChatTurn `json:"history,omitempty"`
}

// ChatTurn is one prior turn of a text-coaching exchange
type ChatTurn struct {
	Role    string `json:"role"` // user or agent
	Content string `json:"content"`
}
