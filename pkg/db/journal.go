// Database model for the journal collaborator.
package db

import "time"

// JournalEntry represents a user's journal entry
type JournalEntry struct {
	ID        string      `json:"id" gorm:"primaryKey;size:36"`
	UserID    string      `json:"user_id" gorm:"index;size:36;not null"`
	Content   string      `json:"content" gorm:"type:text;not null"`
	Mood      string      `json:"mood,omitempty" gorm:"size:50"`
	Tags      StringArray `json:"tags,omitempty" gorm:"type:json"`
	CreatedAt time.Time   `json:"created_at" gorm:"index"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (JournalEntry) TableName() string {
	return "journal_entries"
}
