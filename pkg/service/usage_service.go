// Usage limiter: per-user, per-action counters with a fixed reset window.
// The check-and-increment is the one piece of shared mutable state with a
// correctness requirement, so it runs under a service-level mutex plus a
// transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"gorm.io/gorm"
)

// UsageWindow is the length of one accounting window
const UsageWindow = 24 * time.Hour

// UsageService tracks rate-limited actions. Constructed explicitly with its
// own store handle; never a package-level singleton.
type UsageService struct {
	db     *gorm.DB
	limits map[string]int
	mu     sync.Mutex
	now    func() time.Time // injectable clock for tests
}

// NewUsageService creates a usage service with per-action limits. Actions
// without an entry are unlimited.
func NewUsageService(database *gorm.DB, limits map[string]int) *UsageService {
	if limits == nil {
		limits = map[string]int{}
	}
	return &UsageService{
		db:     database,
		limits: limits,
		now:    time.Now,
	}
}

// Allowed reports whether the action would currently be permitted, without
// incrementing.
func (s *UsageService) Allowed(ctx context.Context, userID, action string) (bool, error) {
	limit, limited := s.limits[action]
	if !limited {
		return true, nil
	}

	var rec db.UsageRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND action = ?", userID, action).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load usage record: %w", err)
	}

	if s.now().After(rec.ResetAt) {
		return true, nil
	}
	return rec.Count < limit, nil
}

// CheckAndIncrement atomically verifies the action is within its limit and
// counts it. On an exhausted window it returns a rate-limit error carrying
// the reset time and leaves the counter untouched.
func (s *UsageService) CheckAndIncrement(ctx context.Context, userID, action string) error {
	limit, limited := s.limits[action]
	if !limited {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec db.UsageRecord
		err := tx.Where("user_id = ? AND action = ?", userID, action).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = db.UsageRecord{
				UserID:  userID,
				Action:  action,
				Count:   1,
				ResetAt: now.Add(UsageWindow),
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("create usage record: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("load usage record: %w", err)
		}

		// Window elapsed: clear the count and advance the window.
		if now.After(rec.ResetAt) {
			rec.Count = 0
			rec.ResetAt = now.Add(UsageWindow)
		}

		if rec.Count >= limit {
			return NewRateLimitError(action, rec.ResetAt)
		}

		rec.Count++
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("update usage record: %w", err)
		}
		return nil
	})
}
