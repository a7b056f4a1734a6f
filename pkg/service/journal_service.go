// Journal collaborator service. Exposes the recency read used by context
// building and a write path that keeps the retrieval index in sync.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JournalService reads and writes journal entries
type JournalService struct {
	db        *gorm.DB
	retrieval *RetrievalService // optional; nil disables indexing
	logger    *slog.Logger
}

// NewJournalService creates a new journal service. retrieval may be nil.
func NewJournalService(database *gorm.DB, retrieval *RetrievalService) *JournalService {
	return &JournalService{
		db:        database,
		retrieval: retrieval,
		logger:    utils.GetLogger(),
	}
}

// GetRecent returns the user's n most recent entries, newest first
func (s *JournalService) GetRecent(ctx context.Context, userID string, n int) ([]db.JournalEntry, error) {
	if n <= 0 {
		n = 5
	}

	var entries []db.JournalEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(n).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("get recent journal entries: %w", err)
	}
	return entries, nil
}

// CountEntries returns the user's total journal entry count
func (s *JournalService) CountEntries(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&db.JournalEntry{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return count, nil
}

// Create persists an entry and indexes it into the retrieval store. An
// indexing failure never fails the write.
func (s *JournalService) Create(ctx context.Context, entry *db.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create journal entry: %w", err)
	}

	if s.retrieval != nil {
		if err := s.retrieval.IndexJournalEntry(ctx, entry); err != nil {
			s.logger.Warn("Failed to index journal entry", "entryID", entry.ID, "error", err)
		}
	}

	return nil
}

// Delete removes an entry and its retrieval document
func (s *JournalService) Delete(ctx context.Context, userID, entryID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		Delete(&db.JournalEntry{})
	if result.Error != nil {
		return fmt.Errorf("delete journal entry: %w", result.Error)
	}

	if s.retrieval != nil {
		s.retrieval.RemoveDocument(ctx, userID, entryID)
	}

	return nil
}
