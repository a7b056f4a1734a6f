package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/models"
	"github.com/KyahWill/journal-app-sub001/pkg/voice"
	"gorm.io/gorm"
)

type fakeResolver struct {
	resolved *ResolvedAgent
	err      error
}

func (f *fakeResolver) Resolve(ctx context.Context, userID, personalityID string) (*ResolvedAgent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resolved, nil
}

type fakeBuilder struct {
	uc           *models.UserContext
	dynamicQuery string
}

func (f *fakeBuilder) BuildInitialContext(ctx context.Context, userID string) *models.UserContext {
	return f.uc
}

func (f *fakeBuilder) BuildDynamicContext(ctx context.Context, userID, query string) *models.UserContext {
	f.dynamicQuery = query
	return f.uc
}

func (f *fakeBuilder) FormatContextForPrompt(uc *models.UserContext) string {
	return "RENDERED CONTEXT"
}

type fakeURLIssuer struct {
	url       string
	err       error
	overrides *voice.SessionOverrides
}

func (f *fakeURLIssuer) GetSignedURL(ctx context.Context, agentID string, overrides *voice.SessionOverrides) (string, error) {
	f.overrides = overrides
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type sessionTestEnv struct {
	svc      *VoiceSessionService
	database *gorm.DB
	builder  *fakeBuilder
	issuer   *fakeURLIssuer
	now      time.Time
}

func newSessionTestEnv(t *testing.T, sessionsPerDay int, uc *models.UserContext) *sessionTestEnv {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if uc == nil {
		uc = &models.UserContext{Goals: []models.GoalContext{}, RecentJournals: []models.JournalContext{}}
	}

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	usage := NewUsageService(database, map[string]int{db.ActionVoiceCoachSession: sessionsPerDay})
	usage.now = func() time.Time { return now }

	builder := &fakeBuilder{uc: uc}
	issuer := &fakeURLIssuer{url: "wss://platform.example/signed"}
	resolver := &fakeResolver{resolved: &ResolvedAgent{AgentID: "agent_test"}}

	svc := NewVoiceSessionService(database, usage, resolver, builder, issuer, NewGoalService(database), NewMetricsService())
	svc.now = func() time.Time { return now }

	return &sessionTestEnv{svc: svc, database: database, builder: builder, issuer: issuer, now: now}
}

func TestCreateSession_PersistsSessionWithExpiry(t *testing.T) {
	env := newSessionTestEnv(t, 10, &models.UserContext{
		Goals: []models.GoalContext{{ID: "g1", Title: "Run a marathon"}},
	})

	resp, err := env.svc.CreateSession(context.Background(), "user1", &models.CreateSessionRequest{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if resp.AgentID != "agent_test" {
		t.Fatalf("agentID = %q, want agent_test", resp.AgentID)
	}
	if resp.Context == nil || len(resp.Context.Goals) != 1 {
		t.Fatalf("expected context snapshot in response")
	}

	var session db.CoachSession
	if err := env.database.First(&session, "id = ?", resp.SessionID).Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session.Status != db.SessionStatusActive {
		t.Fatalf("status = %q, want active", session.Status)
	}
	if !session.ExpiresAt.Equal(env.now.Add(db.SessionMaxDuration)) {
		t.Fatalf("expiresAt = %v, want %v", session.ExpiresAt, env.now.Add(db.SessionMaxDuration))
	}
	if session.GoalCount != 1 || len(session.ActiveGoalIDs) != 1 || session.ActiveGoalIDs[0] != "g1" {
		t.Fatalf("context summary not persisted: %+v", session)
	}
}

func TestCreateSession_ActiveSessionConflict(t *testing.T) {
	env := newSessionTestEnv(t, 10, nil)
	ctx := context.Background()

	if _, err := env.svc.CreateSession(ctx, "user1", nil); err != nil {
		t.Fatalf("first session: %v", err)
	}

	_, err := env.svc.CreateSession(ctx, "user1", nil)
	ce, ok := AsCoachError(err)
	if !ok || ce.Kind != ErrKindActiveSessionExists {
		t.Fatalf("expected active-session conflict, got %v", err)
	}
}

func TestCreateSession_ExpiredSessionDoesNotBlock(t *testing.T) {
	env := newSessionTestEnv(t, 10, nil)
	ctx := context.Background()

	// A stale active row whose expiry already passed.
	stale := db.CoachSession{
		ID: "session_old_user1", UserID: "user1", AgentID: "agent_test",
		Status: db.SessionStatusActive, ExpiresAt: env.now.Add(-time.Minute),
	}
	if err := env.database.Create(&stale).Error; err != nil {
		t.Fatalf("seed stale session: %v", err)
	}

	if _, err := env.svc.CreateSession(ctx, "user1", nil); err != nil {
		t.Fatalf("expected expired session to be ignored, got %v", err)
	}
}

func TestCreateSession_RateLimitCheckedFirst(t *testing.T) {
	env := newSessionTestEnv(t, 1, nil)
	ctx := context.Background()

	if _, err := env.svc.CreateSession(ctx, "user1", nil); err != nil {
		t.Fatalf("first session: %v", err)
	}

	// The user still has an active session AND an exhausted window. The
	// limiter gate runs first, so the rate limit must win.
	_, err := env.svc.CreateSession(ctx, "user1", nil)
	ce, ok := AsCoachError(err)
	if !ok || ce.Kind != ErrKindRateLimitExceeded {
		t.Fatalf("expected rate limit before session conflict, got %v", err)
	}

	var count int64
	env.database.Model(&db.CoachSession{}).Count(&count)
	if count != 1 {
		t.Fatalf("rejected attempt created a session row, count = %d", count)
	}
}

func TestCreateSession_ResolverFailurePropagates(t *testing.T) {
	env := newSessionTestEnv(t, 10, nil)
	env.svc.resolver = &fakeResolver{err: NewAgentNotConfiguredError(errors.New("no fallback"))}

	_, err := env.svc.CreateSession(context.Background(), "user1", nil)
	ce, ok := AsCoachError(err)
	if !ok || ce.Kind != ErrKindAgentNotConfigured {
		t.Fatalf("expected agent-not-configured, got %v", err)
	}

	var count int64
	env.database.Model(&db.CoachSession{}).Count(&count)
	if count != 0 {
		t.Fatalf("failed attempt created a session row")
	}
}

func TestCreateSession_ContextFocusTriggersDynamicBuild(t *testing.T) {
	env := newSessionTestEnv(t, 10, nil)

	_, err := env.svc.CreateSession(context.Background(), "user1", &models.CreateSessionRequest{
		Context: "my career change",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if env.builder.dynamicQuery != "my career change" {
		t.Fatalf("expected dynamic build with the request focus, got %q", env.builder.dynamicQuery)
	}
}

func TestGetSignedURL_OverridesAndExpiry(t *testing.T) {
	env := newSessionTestEnv(t, 10, &models.UserContext{
		Goals: []models.GoalContext{{ID: "g1", Title: "Run a marathon"}},
	})
	env.svc.resolver = &fakeResolver{resolved: &ResolvedAgent{
		AgentID: "agent_test",
		Personality: &db.Personality{
			ID: "p1", UserID: "user1", Name: "Maya", Instructions: "Be warm.",
		},
	}}

	resp, err := env.svc.GetSignedURL(context.Background(), "user1", "p1", "")
	if err != nil {
		t.Fatalf("GetSignedURL: %v", err)
	}
	if resp.SignedURL != "wss://platform.example/signed" {
		t.Fatalf("signedURL = %q", resp.SignedURL)
	}
	if !resp.ExpiresAt.Equal(env.now.Add(signedURLAdvertisedTTL)) {
		t.Fatalf("expiresAt = %v, want %v", resp.ExpiresAt, env.now.Add(signedURLAdvertisedTTL))
	}

	if env.issuer.overrides == nil {
		t.Fatalf("expected session overrides to be sent")
	}
	if !strings.HasPrefix(env.issuer.overrides.SystemPrompt, "Be warm.") {
		t.Fatalf("expected personality instructions to lead the system prompt, got %q", env.issuer.overrides.SystemPrompt)
	}
	if !strings.Contains(env.issuer.overrides.SystemPrompt, "RENDERED CONTEXT") {
		t.Fatalf("expected rendered context in the system prompt")
	}
	if !strings.Contains(env.issuer.overrides.FirstMessage, "Run a marathon") {
		t.Fatalf("expected single-goal greeting to mention the goal, got %q", env.issuer.overrides.FirstMessage)
	}
}

func TestGetSignedURL_ContextFocusTriggersDynamicBuild(t *testing.T) {
	env := newSessionTestEnv(t, 10, nil)

	if _, err := env.svc.GetSignedURL(context.Background(), "user1", "", "my career change"); err != nil {
		t.Fatalf("GetSignedURL: %v", err)
	}
	if env.builder.dynamicQuery != "my career change" {
		t.Fatalf("expected dynamic build with the requested focus, got %q", env.builder.dynamicQuery)
	}

	// Without a focus the snapshot comes from the initial build.
	env.builder.dynamicQuery = ""
	if _, err := env.svc.GetSignedURL(context.Background(), "user1", "", ""); err != nil {
		t.Fatalf("GetSignedURL: %v", err)
	}
	if env.builder.dynamicQuery != "" {
		t.Fatalf("unexpected dynamic build without a focus: %q", env.builder.dynamicQuery)
	}
}

func TestGetSignedURL_PlatformFailure(t *testing.T) {
	env := newSessionTestEnv(t, 10, nil)
	env.issuer.err = errors.New("upstream 500")

	_, err := env.svc.GetSignedURL(context.Background(), "user1", "", "")
	ce, ok := AsCoachError(err)
	if !ok || ce.Kind != ErrKindExternalPlatform {
		t.Fatalf("expected external-platform error, got %v", err)
	}
}

func TestGreetingFor_GoalCounts(t *testing.T) {
	none := greetingFor(&models.UserContext{})
	if none == "" || strings.Contains(none, "goals") {
		t.Fatalf("unexpected zero-goal greeting: %q", none)
	}

	one := greetingFor(&models.UserContext{Goals: []models.GoalContext{{Title: "Learn piano"}}})
	if !strings.Contains(one, "Learn piano") {
		t.Fatalf("single-goal greeting should name the goal: %q", one)
	}

	many := greetingFor(&models.UserContext{Goals: []models.GoalContext{{Title: "A"}, {Title: "B"}, {Title: "C"}}})
	if !strings.Contains(many, "3 goals") {
		t.Fatalf("multi-goal greeting should carry the count: %q", many)
	}
}

func TestSaveConversation_CompletesAllActiveSessions(t *testing.T) {
	env := newSessionTestEnv(t, 10, nil)
	ctx := context.Background()

	for _, id := range []string{"session_a_user1", "session_b_user1"} {
		s := db.CoachSession{
			ID: id, UserID: "user1", AgentID: "agent_test",
			Status: db.SessionStatusActive, ExpiresAt: env.now.Add(time.Hour),
		}
		if err := env.database.Create(&s).Error; err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}

	resp, err := env.svc.SaveConversation(ctx, "user1", &models.SaveConversationRequest{
		ConversationID: "conv_123",
		Transcript: []db.TranscriptMessage{
			{Role: db.RoleUser, Content: "Hello", Timestamp: env.now},
			{Role: db.RoleAgent, Content: "Hi there", Timestamp: env.now},
		},
		Duration:  90,
		StartedAt: env.now.Add(-90 * time.Second),
		EndedAt:   env.now,
	})
	if err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}
	if !resp.Success || resp.ConversationID != "conv_123" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	var remaining int64
	env.database.Model(&db.CoachSession{}).
		Where("user_id = ? AND status = ?", "user1", db.SessionStatusActive).
		Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected all active sessions completed, %d remain", remaining)
	}

	var conversation db.Conversation
	if err := env.database.First(&conversation, "conversation_id = ?", "conv_123").Error; err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if len(conversation.Transcript) != 2 || conversation.Duration != 90 {
		t.Fatalf("conversation not persisted faithfully: %+v", conversation)
	}
}
