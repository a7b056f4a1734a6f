// Database model for coaching sessions.
package db

import "time"

// Session status
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// SessionMaxDuration bounds the lifetime of a coaching session. Expiry is
// advisory: there is no reaper, expired rows are filtered at read time.
const SessionMaxDuration = 1800 * time.Second

// CoachSession represents one coaching session (voice or text).
// At most one row per user should be active and unexpired at a time; the
// orchestrator enforces this with a check-then-create sequence.
type CoachSession struct {
	ID             string      `json:"id" gorm:"primaryKey;size:100"`
	UserID         string      `json:"user_id" gorm:"index:idx_session_user_status;size:36;not null"`
	AgentID        string      `json:"agent_id" gorm:"size:100"`
	PersonalityID  string      `json:"personality_id,omitempty" gorm:"size:36"`
	Status         string      `json:"status" gorm:"index:idx_session_user_status;size:20;default:'active'"`
	GoalCount      int         `json:"goal_count"`
	ActiveGoalIDs  StringArray `json:"active_goal_ids,omitempty" gorm:"type:json"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	ExpiresAt      time.Time   `json:"expires_at" gorm:"index"`
}

func (CoachSession) TableName() string {
	return "coach_sessions"
}
