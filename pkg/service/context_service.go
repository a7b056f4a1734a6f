// Context builder: assembles the bounded UserContext snapshot that
// personalizes a coaching conversation, and renders it into prompt text.
//
// Degradation contract: coaching is never blocked by context assembly. Every
// branch of the parallel fan-out converts its own failure to an empty value
// before the join, and the top level returns an all-empty snapshot rather
// than propagating an error.
package service

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/models"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
)

const (
	recentJournalCount   = 5
	relevantJournalCount = 5
	recencyWindowDays    = 90
	progressNoteCount    = 3
	journalExcerptLimit  = 300
)

// promptFooter closes every rendered context. Kept verbatim regardless of
// snapshot shape.
const promptFooter = `COACHING INSTRUCTIONS:
Use the context above to personalize the conversation. Reference specific goals,
milestones and journal themes when relevant. Encourage reflection, celebrate
progress, and help the user take one concrete next step.`

// GoalProvider is the consumed read surface of the goal collaborator
type GoalProvider interface {
	ListGoals(ctx context.Context, userID string, statuses []db.GoalStatus) ([]db.Goal, error)
	GetMilestones(ctx context.Context, goalID string) ([]db.Milestone, error)
	GetProgressUpdates(ctx context.Context, goalID string, limit int) ([]db.ProgressUpdate, error)
	GetGoalCounts(ctx context.Context, userID string) (*db.GoalCounts, error)
}

// JournalProvider is the consumed read surface of the journal collaborator
type JournalProvider interface {
	GetRecent(ctx context.Context, userID string, n int) ([]db.JournalEntry, error)
	CountEntries(ctx context.Context, userID string) (int64, error)
}

// Retriever is the consumed interface of the retrieval backend
type Retriever interface {
	Query(ctx context.Context, q RetrievalQuery) ([]RetrievedDocument, error)
}

// ContextBuilder is the surface the session orchestrator depends on
type ContextBuilder interface {
	BuildInitialContext(ctx context.Context, userID string) *models.UserContext
	BuildDynamicContext(ctx context.Context, userID, query string) *models.UserContext
	FormatContextForPrompt(uc *models.UserContext) string
}

// ContextService assembles UserContext snapshots
type ContextService struct {
	goals     GoalProvider
	journals  JournalProvider
	retrieval Retriever // optional; nil disables dynamic retrieval
	metrics   *MetricsService
	logger    *slog.Logger
	now       func() time.Time
}

// NewContextService creates a context service. retrieval may be nil; dynamic
// builds then degrade to the initial context.
func NewContextService(goals GoalProvider, journals JournalProvider, retrieval Retriever, metrics *MetricsService) *ContextService {
	return &ContextService{
		goals:     goals,
		journals:  journals,
		retrieval: retrieval,
		metrics:   metrics,
		logger:    utils.GetLogger(),
		now:       time.Now,
	}
}

var _ ContextBuilder = (*ContextService)(nil)

// BuildInitialContext assembles the snapshot from active goals, recent
// journal entries and aggregate counts. The three fetches run concurrently;
// per goal, milestones and progress notes are fetched concurrently as well.
// This call never fails.
func (s *ContextService) BuildInitialContext(ctx context.Context, userID string) (uc *models.UserContext) {
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Context build panicked, returning empty context", "userID", userID, "panic", r)
			uc = &models.UserContext{
				Goals:          []models.GoalContext{},
				RecentJournals: []models.JournalContext{},
			}
		}
	}()

	var (
		wg       sync.WaitGroup
		goals    []models.GoalContext
		journals []models.JournalContext
		stats    models.UserStats
	)

	wg.Add(3)

	go func() {
		defer wg.Done()
		goals = s.fetchGoalContexts(ctx, userID)
	}()

	go func() {
		defer wg.Done()
		journals = s.fetchRecentJournals(ctx, userID)
	}()

	go func() {
		defer wg.Done()
		stats = s.fetchStats(ctx, userID)
	}()

	wg.Wait()

	uc = &models.UserContext{
		Goals:          goals,
		RecentJournals: journals,
		Stats:          stats,
	}

	if s.metrics != nil {
		s.metrics.RecordContextBuild(s.now().Sub(start), len(goals), len(journals))
	}
	return uc
}

// BuildDynamicContext extends the initial snapshot with semantically
// relevant journal entries for the query. Retrieval failures degrade to an
// empty relevantJournals list.
func (s *ContextService) BuildDynamicContext(ctx context.Context, userID, query string) *models.UserContext {
	uc := s.BuildInitialContext(ctx, userID)

	if s.retrieval == nil || strings.TrimSpace(query) == "" {
		return uc
	}

	start := s.now()
	docs, err := s.retrieval.Query(ctx, RetrievalQuery{
		UserID:            userID,
		Query:             query,
		ContentTypes:      []ContentType{ContentTypeJournal},
		Limit:             relevantJournalCount,
		PreferRecent:      true,
		RecencyDays:       recencyWindowDays,
		SkipUsageTracking: true, // system-internal sub-query, not user-billed
	})
	if s.metrics != nil {
		s.metrics.RecordExternalCall("retrieval_query", s.now().Sub(start))
	}
	if err != nil {
		s.logger.Warn("Retrieval failed, continuing without relevant journals",
			"userID", userID, "error", err)
		uc.RelevantJournals = []models.JournalContext{}
		return uc
	}

	relevant := make([]models.JournalContext, 0, len(docs))
	for _, doc := range docs {
		score := doc.Similarity
		relevant = append(relevant, models.JournalContext{
			ID:             doc.ID,
			Content:        doc.Content,
			Mood:           doc.Mood,
			Tags:           doc.Tags,
			Date:           doc.CreatedAt,
			RelevanceScore: &score,
		})
	}
	uc.RelevantJournals = relevant
	return uc
}

// fetchGoalContexts loads active goals and, per goal, its milestones and
// recent progress notes. Any failure degrades to an empty slice.
func (s *ContextService) fetchGoalContexts(ctx context.Context, userID string) []models.GoalContext {
	goals, err := s.goals.ListGoals(ctx, userID, db.ActiveGoalStatuses)
	if err != nil {
		s.logger.Warn("Failed to list goals for context", "userID", userID, "error", err)
		return []models.GoalContext{}
	}

	contexts := make([]models.GoalContext, len(goals))
	var wg sync.WaitGroup

	for i, goal := range goals {
		wg.Add(1)
		go func(i int, goal db.Goal) {
			defer wg.Done()
			contexts[i] = s.buildGoalContext(ctx, goal)
		}(i, goal)
	}

	wg.Wait()
	return contexts
}

func (s *ContextService) buildGoalContext(ctx context.Context, goal db.Goal) models.GoalContext {
	gc := models.GoalContext{
		ID:          goal.ID,
		Title:       goal.Title,
		Description: goal.Description,
		Category:    goal.Category,
		Status:      string(goal.Status),
		Progress:    goal.Progress,
		TargetDate:  goal.TargetDate,
	}

	if goal.TargetDate != nil {
		days := daysRemaining(*goal.TargetDate, s.now())
		gc.DaysRemaining = &days
	}

	// Milestones and progress notes are independent; fetch them together.
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		milestones, err := s.goals.GetMilestones(ctx, goal.ID)
		if err != nil {
			s.logger.Warn("Failed to fetch milestones", "goalID", goal.ID, "error", err)
			return
		}
		gc.Milestones = make([]models.MilestoneContext, len(milestones))
		for i, m := range milestones {
			gc.Milestones[i] = models.MilestoneContext{Title: m.Title, Completed: m.Completed}
		}
	}()

	go func() {
		defer wg.Done()
		updates, err := s.goals.GetProgressUpdates(ctx, goal.ID, progressNoteCount)
		if err != nil {
			s.logger.Warn("Failed to fetch progress updates", "goalID", goal.ID, "error", err)
			return
		}
		gc.RecentProgress = make([]models.ProgressNote, len(updates))
		for i, u := range updates {
			gc.RecentProgress[i] = models.ProgressNote{Note: u.Note, Date: u.CreatedAt}
		}
	}()

	wg.Wait()
	return gc
}

func (s *ContextService) fetchRecentJournals(ctx context.Context, userID string) []models.JournalContext {
	entries, err := s.journals.GetRecent(ctx, userID, recentJournalCount)
	if err != nil {
		s.logger.Warn("Failed to fetch recent journals for context", "userID", userID, "error", err)
		return []models.JournalContext{}
	}

	journals := make([]models.JournalContext, len(entries))
	for i, e := range entries {
		journals[i] = models.JournalContext{
			ID:      e.ID,
			Content: e.Content,
			Mood:    e.Mood,
			Tags:    e.Tags,
			Date:    e.CreatedAt,
		}
	}
	return journals
}

func (s *ContextService) fetchStats(ctx context.Context, userID string) models.UserStats {
	stats := models.UserStats{}

	counts, err := s.goals.GetGoalCounts(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to fetch goal counts for context", "userID", userID, "error", err)
	} else {
		stats.TotalGoals = counts.Total
		stats.ActiveGoals = counts.Active
		stats.CompletedGoals = counts.Completed
		stats.OverdueGoals = counts.Overdue
	}

	entryCount, err := s.journals.CountEntries(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to count journal entries for context", "userID", userID, "error", err)
	} else {
		stats.JournalEntries = entryCount
	}

	return stats
}

// daysRemaining is the ceiling of the day difference between target and now.
// Negative for overdue targets.
func daysRemaining(target, now time.Time) int {
	return int(math.Ceil(target.Sub(now).Hours() / 24))
}

// FormatContextForPrompt renders the snapshot as flat text with a fixed
// section order: header, statistics, goals, recent journal, relevant
// journal, preferences, footer. Never fails; on internal error it returns a
// minimal placeholder so the conversation can proceed without
// personalization.
func (s *ContextService) FormatContextForPrompt(uc *models.UserContext) (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Prompt formatting panicked, using placeholder", "panic", r)
			out = "USER CONTEXT: unavailable\n\n" + promptFooter
		}
	}()

	if uc == nil {
		return "USER CONTEXT: unavailable\n\n" + promptFooter
	}

	var sb strings.Builder
	sb.WriteString("=== USER CONTEXT ===\n\n")

	sb.WriteString("STATISTICS:\n")
	sb.WriteString("- Goals: ")
	sb.WriteString(formatInt(uc.Stats.TotalGoals))
	sb.WriteString(" total, ")
	sb.WriteString(formatInt(uc.Stats.ActiveGoals))
	sb.WriteString(" active, ")
	sb.WriteString(formatInt(uc.Stats.CompletedGoals))
	sb.WriteString(" completed, ")
	sb.WriteString(formatInt(uc.Stats.OverdueGoals))
	sb.WriteString(" overdue\n")
	sb.WriteString("- Journal entries: ")
	sb.WriteString(formatInt(uc.Stats.JournalEntries))
	sb.WriteString("\n\n")

	if len(uc.Goals) > 0 {
		sb.WriteString("ACTIVE GOALS:\n")
		for _, g := range uc.Goals {
			sb.WriteString("* ")
			sb.WriteString(g.Title)
			sb.WriteString(" [")
			sb.WriteString(g.Status)
			sb.WriteString(", ")
			sb.WriteString(formatInt(int64(g.Progress)))
			sb.WriteString("% done")
			if g.DaysRemaining != nil {
				sb.WriteString(", ")
				if *g.DaysRemaining < 0 {
					sb.WriteString(formatInt(int64(-*g.DaysRemaining)))
					sb.WriteString(" days overdue")
				} else {
					sb.WriteString(formatInt(int64(*g.DaysRemaining)))
					sb.WriteString(" days remaining")
				}
			}
			sb.WriteString("]\n")
			if g.Description != "" {
				sb.WriteString("  ")
				sb.WriteString(g.Description)
				sb.WriteString("\n")
			}
			for _, m := range g.Milestones {
				if m.Completed {
					sb.WriteString("  ✓ ")
				} else {
					sb.WriteString("  ○ ")
				}
				sb.WriteString(m.Title)
				sb.WriteString("\n")
			}
			for _, p := range g.RecentProgress {
				sb.WriteString("  progress (")
				sb.WriteString(p.Date.Format("2006-01-02"))
				sb.WriteString("): ")
				sb.WriteString(p.Note)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")
	}

	if len(uc.RecentJournals) > 0 {
		sb.WriteString("RECENT JOURNAL ENTRIES:\n")
		for _, j := range uc.RecentJournals {
			writeJournalLine(&sb, j)
		}
		sb.WriteString("\n")
	}

	if len(uc.RelevantJournals) > 0 {
		sb.WriteString("RELEVANT JOURNAL ENTRIES:\n")
		for _, j := range uc.RelevantJournals {
			writeJournalLine(&sb, j)
		}
		sb.WriteString("\n")
	}

	if uc.Preferences != "" {
		sb.WriteString("PREFERENCES:\n")
		sb.WriteString(uc.Preferences)
		sb.WriteString("\n\n")
	}

	sb.WriteString(promptFooter)
	return sb.String()
}

func writeJournalLine(sb *strings.Builder, j models.JournalContext) {
	sb.WriteString("* ")
	sb.WriteString(j.Date.Format("2006-01-02"))
	if j.Mood != "" {
		sb.WriteString(" (")
		sb.WriteString(j.Mood)
		sb.WriteString(")")
	}
	if j.RelevanceScore != nil {
		sb.WriteString(" [")
		sb.WriteString(formatInt(int64(math.Round(*j.RelevanceScore * 100))))
		sb.WriteString("% relevant]")
	}
	sb.WriteString(": ")
	sb.WriteString(truncate(j.Content, journalExcerptLimit))
	sb.WriteString("\n")
}

// truncate shortens s to at most limit runes, appending an ellipsis
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
