// Database model for per-user action usage counters.
package db

import "time"

// Known rate-limited actions
const (
	ActionVoiceCoachSession = "voice_coach_session"
)

// UsageRecord tracks how many times a user performed a rate-limited action
// within the current window. ResetAt marks the end of the window; passing it
// clears the count and advances the window.
type UsageRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    string    `json:"user_id" gorm:"uniqueIndex:idx_usage_user_action;size:36;not null"`
	Action    string    `json:"action" gorm:"uniqueIndex:idx_usage_user_action;size:50;not null"`
	Count     int       `json:"count" gorm:"default:0"`
	ResetAt   time.Time `json:"reset_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
