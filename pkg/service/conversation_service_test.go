package service

import (
	"context"
	"testing"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"gorm.io/gorm"
)

func seedConversations(t *testing.T, database *gorm.DB) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []db.Conversation{
		{
			ID: "c1", UserID: "user1", ConversationID: "conv_1", Duration: 120,
			Summary: "Talked about career change plans",
			Transcript: db.Transcript{
				{Role: db.RoleUser, Content: "I want to switch jobs", Timestamp: base},
			},
			CreatedAt: base,
		},
		{
			ID: "c2", UserID: "user1", ConversationID: "conv_2", Duration: 300,
			Summary: "Marathon training check-in",
			Transcript: db.Transcript{
				{Role: db.RoleUser, Content: "My knee hurts after long runs", Timestamp: base},
			},
			CreatedAt: base.AddDate(0, 0, 2),
		},
		{
			ID: "c3", UserID: "user1", ConversationID: "conv_3", Duration: 60,
			Summary: "Short check-in",
			Transcript: db.Transcript{
				{Role: db.RoleAgent, Content: "How did the CAREER conversation go?", Timestamp: base},
			},
			CreatedAt: base.AddDate(0, 0, 4),
		},
		{
			ID: "c4", UserID: "user2", ConversationID: "conv_other", Duration: 45,
			Summary:   "Someone else's conversation",
			CreatedAt: base,
		},
	}
	for i := range rows {
		if err := database.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed conversation %s: %v", rows[i].ID, err)
		}
	}
}

func newConversationTestEnv(t *testing.T) (*ConversationService, *gorm.DB) {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	seedConversations(t, database)
	return NewConversationService(database), database
}

func TestHistory_NewestFirstAndOwnerScoped(t *testing.T) {
	svc, _ := newConversationTestEnv(t)

	conversations, err := svc.History(context.Background(), "user1", HistoryQuery{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(conversations) != 3 {
		t.Fatalf("expected 3 conversations for user1, got %d", len(conversations))
	}
	if conversations[0].ID != "c3" || conversations[2].ID != "c1" {
		t.Fatalf("expected newest-first default order, got %s..%s", conversations[0].ID, conversations[2].ID)
	}
}

func TestHistory_DurationSort(t *testing.T) {
	svc, _ := newConversationTestEnv(t)
	ctx := context.Background()

	longest, err := svc.History(ctx, "user1", HistoryQuery{SortBy: SortLongest})
	if err != nil {
		t.Fatalf("History longest: %v", err)
	}
	if longest[0].Duration != 300 || longest[len(longest)-1].Duration != 60 {
		t.Fatalf("longest sort wrong: %v", durations(longest))
	}

	shortest, err := svc.History(ctx, "user1", HistoryQuery{SortBy: SortShortest})
	if err != nil {
		t.Fatalf("History shortest: %v", err)
	}
	if shortest[0].Duration != 60 || shortest[len(shortest)-1].Duration != 300 {
		t.Fatalf("shortest sort wrong: %v", durations(shortest))
	}
}

func durations(conversations []db.Conversation) []int {
	out := make([]int, len(conversations))
	for i, c := range conversations {
		out[i] = c.Duration
	}
	return out
}

func TestHistory_CaseInsensitiveSearch(t *testing.T) {
	svc, _ := newConversationTestEnv(t)

	// Matches "career" in one summary and "CAREER" in another transcript.
	conversations, err := svc.History(context.Background(), "user1", HistoryQuery{Search: "career"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(conversations))
	}
}

func TestHistory_DateFilterAndLimit(t *testing.T) {
	svc, _ := newConversationTestEnv(t)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	conversations, err := svc.History(context.Background(), "user1", HistoryQuery{StartDate: &start, Limit: 1})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("expected limit to cap results, got %d", len(conversations))
	}
	if conversations[0].ID != "c3" {
		t.Fatalf("expected newest in range, got %s", conversations[0].ID)
	}
}

func TestLoad_CrossUserIsNotFound(t *testing.T) {
	svc, _ := newConversationTestEnv(t)

	_, err := svc.Load(context.Background(), "user1", "conv_other")
	ce, ok := AsCoachError(err)
	if !ok || ce.Kind != ErrKindConversationNotFound {
		t.Fatalf("expected conversation-not-found for foreign id, got %v", err)
	}

	if _, err := svc.Load(context.Background(), "user2", "conv_other"); err != nil {
		t.Fatalf("owner load failed: %v", err)
	}
}

func TestDelete_ScopedToOwner(t *testing.T) {
	svc, database := newConversationTestEnv(t)
	ctx := context.Background()

	err := svc.Delete(ctx, "user1", "conv_other")
	ce, ok := AsCoachError(err)
	if !ok || ce.Kind != ErrKindConversationNotFound {
		t.Fatalf("expected not-found deleting foreign conversation, got %v", err)
	}

	if err := svc.Delete(ctx, "user1", "conv_1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var count int64
	database.Model(&db.Conversation{}).Where("conversation_id = ?", "conv_1").Count(&count)
	if count != 0 {
		t.Fatalf("conversation not deleted")
	}
}
