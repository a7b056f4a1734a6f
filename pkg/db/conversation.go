// Database models for stored coaching conversations.
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Transcript roles
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// TranscriptMessage is a single turn in a conversation transcript
type TranscriptMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	AudioRef  string    `json:"audio_ref,omitempty"`
}

// Transcript is an ordered list of turns stored as a JSON column
type Transcript []TranscriptMessage

// Value implements driver.Valuer for Transcript
func (t Transcript) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for Transcript
func (t *Transcript) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte or string failed")
	}
	return json.Unmarshal(bytes, t)
}

// Conversation is a completed (or partial) coaching conversation. Immutable
// after save except for deletion.
type Conversation struct {
	ID             string      `json:"id" gorm:"primaryKey;size:36"`
	UserID         string      `json:"user_id" gorm:"index;size:36;not null"`
	ConversationID string      `json:"conversation_id" gorm:"index;size:100;not null"` // client-supplied
	Transcript     Transcript  `json:"transcript" gorm:"type:json"`
	Duration       int         `json:"duration"` // seconds
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        time.Time   `json:"ended_at"`
	Summary        string      `json:"summary,omitempty" gorm:"type:text"`
	GoalCount      int         `json:"goal_count"`
	ActiveGoalIDs  StringArray `json:"active_goal_ids,omitempty" gorm:"type:json"`
	CreatedAt      time.Time   `json:"created_at" gorm:"index"`
}

func (Conversation) TableName() string {
	return "coach_conversations"
}
