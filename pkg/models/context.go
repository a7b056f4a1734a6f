// Package models holds the in-memory context snapshot types and the API
// request/response shapes for the coaching engine.
package models

import "time"

// UserContext is the bounded snapshot assembled per coaching request. It is
// immutable once built and never persisted as a source of truth; only a
// summary (goal count, active goal ids) is stored with a session.
type UserContext struct {
	Goals            []GoalContext    `json:"goals"`
	RecentJournals   []JournalContext `json:"recentJournals"`
	RelevantJournals []JournalContext `json:"relevantJournals,omitempty"` // query-driven builds only
	Stats            UserStats        `json:"stats"`
	Preferences      string           `json:"preferences,omitempty"`
}

// GoalContext is the read-only context view of a goal
type GoalContext struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description,omitempty"`
	Category       string             `json:"category,omitempty"`
	Status         string             `json:"status"`
	Progress       int                `json:"progress"`
	TargetDate     *time.Time         `json:"targetDate,omitempty"`
	DaysRemaining  *int               `json:"daysRemaining,omitempty"` // negative when overdue
	RecentProgress []ProgressNote     `json:"recentProgress,omitempty"`
	Milestones     []MilestoneContext `json:"milestones,omitempty"`
}

// ProgressNote is a dated progress note attached to a goal context
type ProgressNote struct {
	Note string    `json:"note"`
	Date time.Time `json:"date"`
}

// MilestoneContext is the context view of a milestone
type MilestoneContext struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// JournalContext is the context view of a journal entry. RelevanceScore is
// only set on retrieval results (conceptually 0-1).
type JournalContext struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	Mood           string    `json:"mood,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Date           time.Time `json:"date"`
	RelevanceScore *float64  `json:"relevanceScore,omitempty"`
}

// UserStats aggregates goal and journal counts for the snapshot
type UserStats struct {
	TotalGoals     int64 `json:"totalGoals"`
	ActiveGoals    int64 `json:"activeGoals"`
	CompletedGoals int64 `json:"completedGoals"`
	OverdueGoals   int64 `json:"overdueGoals"`
	JournalEntries int64 `json:"journalEntries"`
	CurrentStreak  int   `json:"currentStreak"` // placeholder, not yet computed
}
