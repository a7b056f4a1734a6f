package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/models"
)

type fakeGoals struct {
	goals      []db.Goal
	milestones map[string][]db.Milestone
	progress   map[string][]db.ProgressUpdate
	counts     *db.GoalCounts
	err        error
}

func (f *fakeGoals) ListGoals(ctx context.Context, userID string, statuses []db.GoalStatus) ([]db.Goal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.goals, nil
}

func (f *fakeGoals) GetMilestones(ctx context.Context, goalID string) ([]db.Milestone, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.milestones[goalID], nil
}

func (f *fakeGoals) GetProgressUpdates(ctx context.Context, goalID string, limit int) ([]db.ProgressUpdate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.progress[goalID], nil
}

func (f *fakeGoals) GetGoalCounts(ctx context.Context, userID string) (*db.GoalCounts, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.counts == nil {
		return &db.GoalCounts{}, nil
	}
	return f.counts, nil
}

type fakeJournals struct {
	entries []db.JournalEntry
	count   int64
	err     error
}

func (f *fakeJournals) GetRecent(ctx context.Context, userID string, n int) ([]db.JournalEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeJournals) CountEntries(ctx context.Context, userID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

type fakeRetriever struct {
	docs    []RetrievedDocument
	err     error
	lastQ   RetrievalQuery
	queried bool
}

func (f *fakeRetriever) Query(ctx context.Context, q RetrievalQuery) ([]RetrievedDocument, error) {
	f.queried = true
	f.lastQ = q
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func newTestContextService(goals GoalProvider, journals JournalProvider, retrieval Retriever) *ContextService {
	return NewContextService(goals, journals, retrieval, NewMetricsService())
}

func TestBuildInitialContext_EmptyUser(t *testing.T) {
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, nil)

	uc := svc.BuildInitialContext(context.Background(), "user1")
	if uc == nil {
		t.Fatalf("expected non-nil context")
	}
	if uc.Goals == nil || len(uc.Goals) != 0 {
		t.Fatalf("expected empty goals slice, got %v", uc.Goals)
	}
	if uc.RecentJournals == nil || len(uc.RecentJournals) != 0 {
		t.Fatalf("expected empty journals slice, got %v", uc.RecentJournals)
	}
	if uc.Stats.TotalGoals != 0 || uc.Stats.JournalEntries != 0 {
		t.Fatalf("expected zero stats, got %+v", uc.Stats)
	}
}

func TestBuildInitialContext_CollaboratorFailuresDegrade(t *testing.T) {
	svc := newTestContextService(
		&fakeGoals{err: errors.New("goal store down")},
		&fakeJournals{err: errors.New("journal store down")},
		nil,
	)

	uc := svc.BuildInitialContext(context.Background(), "user1")
	if uc == nil {
		t.Fatalf("expected non-nil context despite failures")
	}
	if len(uc.Goals) != 0 || len(uc.RecentJournals) != 0 {
		t.Fatalf("expected empty branches, got %+v", uc)
	}
}

func TestBuildInitialContext_DaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		target time.Time
		want   int
	}{
		{"fraction rounds up", now.Add(36 * time.Hour), 2},
		{"overdue is negative", now.Add(-25 * time.Hour), -1},
		{"same instant", now, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := tc.target
			goals := &fakeGoals{goals: []db.Goal{{
				ID: "g1", UserID: "user1", Title: "Run a marathon",
				Status: db.GoalStatusInProgress, TargetDate: &target,
			}}}
			svc := newTestContextService(goals, &fakeJournals{}, nil)
			svc.now = func() time.Time { return now }

			uc := svc.BuildInitialContext(context.Background(), "user1")
			if len(uc.Goals) != 1 {
				t.Fatalf("expected 1 goal, got %d", len(uc.Goals))
			}
			if uc.Goals[0].DaysRemaining == nil {
				t.Fatalf("expected daysRemaining to be set")
			}
			if got := *uc.Goals[0].DaysRemaining; got != tc.want {
				t.Fatalf("daysRemaining = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestBuildDynamicContext_RetrievalFailureDegrades(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("vector store down")}
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, retriever)

	uc := svc.BuildDynamicContext(context.Background(), "user1", "how is my career going")
	if !retriever.queried {
		t.Fatalf("expected retrieval to be attempted")
	}
	if uc.RelevantJournals == nil || len(uc.RelevantJournals) != 0 {
		t.Fatalf("expected empty relevantJournals, got %v", uc.RelevantJournals)
	}
}

func TestBuildDynamicContext_MapsDocumentsAndSkipsBilling(t *testing.T) {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	retriever := &fakeRetriever{docs: []RetrievedDocument{{
		ID: "j1", Content: "thinking about a promotion", Type: ContentTypeJournal,
		Mood: "hopeful", CreatedAt: created, Similarity: 0.91,
	}}}
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, retriever)

	uc := svc.BuildDynamicContext(context.Background(), "user1", "career")
	if len(uc.RelevantJournals) != 1 {
		t.Fatalf("expected 1 relevant journal, got %d", len(uc.RelevantJournals))
	}
	got := uc.RelevantJournals[0]
	if got.RelevanceScore == nil || *got.RelevanceScore != 0.91 {
		t.Fatalf("expected relevance score 0.91, got %v", got.RelevanceScore)
	}
	if !retriever.lastQ.SkipUsageTracking {
		t.Fatalf("expected internal retrieval to skip usage tracking")
	}
	if retriever.lastQ.RecencyDays != recencyWindowDays || !retriever.lastQ.PreferRecent {
		t.Fatalf("expected recency preference over %d days, got %+v", recencyWindowDays, retriever.lastQ)
	}
}

func TestBuildDynamicContext_EmptyQuerySkipsRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, retriever)

	svc.BuildDynamicContext(context.Background(), "user1", "   ")
	if retriever.queried {
		t.Fatalf("expected no retrieval for a blank query")
	}
}

func TestFormatContextForPrompt_SectionsAndFooter(t *testing.T) {
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, nil)
	days := 12
	score := 0.8

	uc := &models.UserContext{
		Goals: []models.GoalContext{{
			ID: "g1", Title: "Run a marathon", Status: "in_progress", Progress: 40,
			DaysRemaining: &days,
			Milestones: []models.MilestoneContext{
				{Title: "Run 10k", Completed: true},
				{Title: "Run 20k", Completed: false},
			},
			RecentProgress: []models.ProgressNote{
				{Note: "Ran 12k today", Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
			},
		}},
		RecentJournals: []models.JournalContext{{
			ID: "j1", Content: "Felt strong on the long run", Mood: "energized",
			Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		}},
		RelevantJournals: []models.JournalContext{{
			ID: "j2", Content: "Worried about my knee", Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
			RelevanceScore: &score,
		}},
		Stats: models.UserStats{TotalGoals: 3, ActiveGoals: 1, CompletedGoals: 2, JournalEntries: 14},
	}

	out := svc.FormatContextForPrompt(uc)

	if !strings.HasSuffix(out, promptFooter) {
		t.Fatalf("expected output to end with the coaching footer")
	}
	for _, want := range []string{
		"=== USER CONTEXT ===",
		"STATISTICS:",
		"Run a marathon",
		"12 days remaining",
		"✓ Run 10k",
		"○ Run 20k",
		"progress (2026-03-01): Ran 12k today",
		"RECENT JOURNAL ENTRIES:",
		"(energized)",
		"RELEVANT JOURNAL ENTRIES:",
		"[80% relevant]",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q\noutput:\n%s", want, out)
		}
	}

	statsIdx := strings.Index(out, "STATISTICS:")
	goalsIdx := strings.Index(out, "ACTIVE GOALS:")
	recentIdx := strings.Index(out, "RECENT JOURNAL ENTRIES:")
	relevantIdx := strings.Index(out, "RELEVANT JOURNAL ENTRIES:")
	if !(statsIdx < goalsIdx && goalsIdx < recentIdx && recentIdx < relevantIdx) {
		t.Fatalf("sections out of order: stats=%d goals=%d recent=%d relevant=%d",
			statsIdx, goalsIdx, recentIdx, relevantIdx)
	}
}

func TestFormatContextForPrompt_TruncatesLongEntries(t *testing.T) {
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, nil)

	long := strings.Repeat("a", journalExcerptLimit+50)
	uc := &models.UserContext{
		RecentJournals: []models.JournalContext{{ID: "j1", Content: long, Date: time.Now()}},
	}

	out := svc.FormatContextForPrompt(uc)
	if strings.Contains(out, long) {
		t.Fatalf("expected long entry to be truncated")
	}
	if !strings.Contains(out, strings.Repeat("a", journalExcerptLimit)+"...") {
		t.Fatalf("expected truncated entry with ellipsis")
	}
}

func TestFormatContextForPrompt_NilContext(t *testing.T) {
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, nil)

	out := svc.FormatContextForPrompt(nil)
	if out == "" {
		t.Fatalf("expected placeholder output")
	}
	if !strings.Contains(out, promptFooter) {
		t.Fatalf("expected footer even on placeholder output")
	}
}

func TestFormatContextForPrompt_OverdueGoal(t *testing.T) {
	svc := newTestContextService(&fakeGoals{}, &fakeJournals{}, nil)
	overdue := -3

	uc := &models.UserContext{
		Goals: []models.GoalContext{{
			ID: "g1", Title: "Finish the book", Status: "in_progress", DaysRemaining: &overdue,
		}},
	}

	out := svc.FormatContextForPrompt(uc)
	if !strings.Contains(out, "3 days overdue") {
		t.Fatalf("expected overdue rendering, got:\n%s", out)
	}
}
