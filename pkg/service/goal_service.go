// Goal collaborator service. Goal CRUD proper lives outside this engine;
// this service exposes the read surface the context builder needs plus the
// minimal writes used by seeding and tests.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GoalService reads goals, milestones and progress notes for a user
type GoalService struct {
	db *gorm.DB
}

// NewGoalService creates a new goal service
func NewGoalService(database *gorm.DB) *GoalService {
	return &GoalService{db: database}
}

// ListGoals returns the user's goals, optionally filtered by status
func (s *GoalService) ListGoals(ctx context.Context, userID string, statuses []db.GoalStatus) ([]db.Goal, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var goals []db.Goal
	if err := query.Order("created_at DESC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// GetMilestones returns all milestones of a goal in creation order
func (s *GoalService) GetMilestones(ctx context.Context, goalID string) ([]db.Milestone, error) {
	var milestones []db.Milestone
	err := s.db.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("created_at ASC").
		Find(&milestones).Error
	if err != nil {
		return nil, fmt.Errorf("get milestones: %w", err)
	}
	return milestones, nil
}

// GetProgressUpdates returns the most recent progress notes of a goal,
// newest first
func (s *GoalService) GetProgressUpdates(ctx context.Context, goalID string, limit int) ([]db.ProgressUpdate, error) {
	if limit <= 0 {
		limit = 3
	}

	var updates []db.ProgressUpdate
	err := s.db.WithContext(ctx).
		Where("goal_id = ?", goalID).
		Order("created_at DESC").
		Limit(limit).
		Find(&updates).Error
	if err != nil {
		return nil, fmt.Errorf("get progress updates: %w", err)
	}
	return updates, nil
}

// GetGoalCounts aggregates per-user goal statistics
func (s *GoalService) GetGoalCounts(ctx context.Context, userID string) (*db.GoalCounts, error) {
	counts := &db.GoalCounts{}
	base := s.db.WithContext(ctx).Model(&db.Goal{}).Where("user_id = ?", userID)

	if err := base.Session(&gorm.Session{}).Count(&counts.Total).Error; err != nil {
		return nil, fmt.Errorf("count goals: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("status IN ?", db.ActiveGoalStatuses).Count(&counts.Active).Error; err != nil {
		return nil, fmt.Errorf("count active goals: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("status = ?", db.GoalStatusCompleted).Count(&counts.Completed).Error; err != nil {
		return nil, fmt.Errorf("count completed goals: %w", err)
	}
	err := base.Session(&gorm.Session{}).
		Where("status IN ?", db.ActiveGoalStatuses).
		Where("target_date IS NOT NULL AND target_date < ?", time.Now()).
		Count(&counts.Overdue).Error
	if err != nil {
		return nil, fmt.Errorf("count overdue goals: %w", err)
	}

	return counts, nil
}

// CreateGoal inserts a goal row. Used by seeding and tests.
func (s *GoalService) CreateGoal(ctx context.Context, goal *db.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.New().String()
	}
	if goal.Status == "" {
		goal.Status = db.GoalStatusNotStarted
	}
	if err := s.db.WithContext(ctx).Create(goal).Error; err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

// AddMilestone inserts a milestone row. Used by seeding and tests.
func (s *GoalService) AddMilestone(ctx context.Context, milestone *db.Milestone) error {
	if milestone.ID == "" {
		milestone.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(milestone).Error; err != nil {
		return fmt.Errorf("add milestone: %w", err)
	}
	return nil
}

// AddProgressUpdate inserts a progress note. Used by seeding and tests.
func (s *GoalService) AddProgressUpdate(ctx context.Context, update *db.ProgressUpdate) error {
	if update.ID == "" {
		update.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(update).Error; err != nil {
		return fmt.Errorf("add progress update: %w", err)
	}
	return nil
}
