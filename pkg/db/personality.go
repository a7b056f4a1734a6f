// Database model for coaching personalities.
package db

import "time"

// Personality is a user-configurable coaching style/voice/prompt bundle.
// AgentID is populated lazily the first time the personality is resolved
// against the voice platform; a nil value triggers provisioning.
//
// At most one personality per user should have IsDefault set. This is kept
// by convention (the seed set marks exactly one), not by a DB constraint.
type Personality struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UserID       string    `json:"user_id" gorm:"index;size:36;not null"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	Style        string    `json:"style" gorm:"size:50"`
	Instructions string    `json:"instructions" gorm:"type:text"`
	VoiceParams  JSONMap   `json:"voice_params,omitempty" gorm:"type:json"`
	AgentID      *string   `json:"agent_id,omitempty" gorm:"size:100"`
	IsDefault    bool      `json:"is_default" gorm:"default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Personality) TableName() string {
	return "personalities"
}
