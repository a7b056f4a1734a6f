// Database models for the goal collaborator.
package db

import "time"

// GoalStatus defines the lifecycle state of a goal
type GoalStatus string

const (
	GoalStatusNotStarted GoalStatus = "not_started"
	GoalStatusInProgress GoalStatus = "in_progress"
	GoalStatusCompleted  GoalStatus = "completed"
	GoalStatusAbandoned  GoalStatus = "abandoned"
)

// ActiveGoalStatuses are the statuses considered "active" for context
// building and session snapshots.
var ActiveGoalStatuses = []GoalStatus{GoalStatusInProgress, GoalStatusNotStarted}

// Goal represents a user's personal-development goal
type Goal struct {
	ID          string      `json:"id" gorm:"primaryKey;size:36"`
	UserID      string      `json:"user_id" gorm:"index:idx_goal_user_status;size:36;not null"`
	Title       string      `json:"title" gorm:"size:200;not null"`
	Description string      `json:"description,omitempty" gorm:"type:text"`
	Category    string      `json:"category,omitempty" gorm:"size:100"`
	Status      GoalStatus  `json:"status" gorm:"index:idx_goal_user_status;size:20;default:'not_started'"`
	Progress    int         `json:"progress" gorm:"default:0"` // 0-100
	TargetDate  *time.Time  `json:"target_date,omitempty"`
	Tags        StringArray `json:"tags,omitempty" gorm:"type:json"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Goal) TableName() string {
	return "goals"
}

// Milestone is a checkpoint within a goal
type Milestone struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	GoalID      string     `json:"goal_id" gorm:"index;size:36;not null"`
	Title       string     `json:"title" gorm:"size:200;not null"`
	Completed   bool       `json:"completed" gorm:"default:false"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (Milestone) TableName() string {
	return "milestones"
}

// ProgressUpdate is a dated note recording progress on a goal
type ProgressUpdate struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	GoalID    string    `json:"goal_id" gorm:"index;size:36;not null"`
	Note      string    `json:"note" gorm:"type:text;not null"`
	Progress  int       `json:"progress"` // progress value at the time of the note
	CreatedAt time.Time `json:"created_at"`
}

func (ProgressUpdate) TableName() string {
	return "progress_updates"
}

// GoalCounts aggregates per-user goal statistics
type GoalCounts struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Overdue   int64 `json:"overdue"`
}
