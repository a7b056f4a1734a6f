// Conversation store: query surface over saved coaching conversations.
// Date filtering happens in SQL; text search and duration ordering happen in
// memory over the user's (bounded) result set, because the transcript is a
// JSON column the store cannot search natively.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
	"gorm.io/gorm"
)

// Duration sort orders accepted by History
const (
	SortLongest  = "longest"
	SortShortest = "shortest"
)

// HistoryQuery filters and orders a conversation listing
type HistoryQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	Search    string // case-insensitive, matched against summary and transcript
	SortBy    string // SortLongest, SortShortest or empty for newest-first
	Limit     int
}

// ConversationService reads and deletes stored conversations
type ConversationService struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewConversationService creates a conversation service
func NewConversationService(database *gorm.DB) *ConversationService {
	return &ConversationService{db: database, logger: utils.GetLogger()}
}

// History lists the user's conversations. The limit applies after search
// filtering and ordering, so a limited result is always the best matches.
func (s *ConversationService) History(ctx context.Context, userID string, q HistoryQuery) ([]db.Conversation, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if q.StartDate != nil {
		tx = tx.Where("created_at >= ?", *q.StartDate)
	}
	if q.EndDate != nil {
		tx = tx.Where("created_at <= ?", *q.EndDate)
	}

	var conversations []db.Conversation
	if err := tx.Order("created_at DESC").Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	if q.Search != "" {
		conversations = filterBySearch(conversations, q.Search)
	}

	switch q.SortBy {
	case SortLongest:
		sort.SliceStable(conversations, func(i, j int) bool {
			return conversations[i].Duration > conversations[j].Duration
		})
	case SortShortest:
		sort.SliceStable(conversations, func(i, j int) bool {
			return conversations[i].Duration < conversations[j].Duration
		})
	}

	if q.Limit > 0 && len(conversations) > q.Limit {
		conversations = conversations[:q.Limit]
	}
	return conversations, nil
}

// Load fetches one conversation by its client-supplied id, scoped to the
// owner. Missing and foreign-owned ids are indistinguishable.
func (s *ConversationService) Load(ctx context.Context, userID, conversationID string) (*db.Conversation, error) {
	var conversation db.Conversation
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewConversationNotFoundError(conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &conversation, nil
}

// Delete removes one conversation, scoped to the owner.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	result := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&db.Conversation{})
	if result.Error != nil {
		return fmt.Errorf("delete conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return NewConversationNotFoundError(conversationID)
	}
	s.logger.Info("Conversation deleted", "userID", userID, "conversationID", conversationID)
	return nil
}

func filterBySearch(conversations []db.Conversation, search string) []db.Conversation {
	needle := strings.ToLower(search)
	matched := conversations[:0]
	for _, c := range conversations {
		if conversationMatches(c, needle) {
			matched = append(matched, c)
		}
	}
	return matched
}

func conversationMatches(c db.Conversation, needle string) bool {
	if strings.Contains(strings.ToLower(c.Summary), needle) {
		return true
	}
	for _, msg := range c.Transcript {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			return true
		}
	}
	return false
}
