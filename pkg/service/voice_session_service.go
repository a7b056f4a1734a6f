// Session orchestrator: the use-case layer gluing the usage limiter, agent
// resolver, context builder, voice platform and conversation store into the
// three voice-coach operations (create session, issue signed URL, save
// conversation).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/models"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
	"github.com/KyahWill/journal-app-sub001/pkg/voice"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// signedURLAdvertisedTTL is the client-visible credential lifetime. The
// platform controls the real expiry; this value is only an advertisement.
const signedURLAdvertisedTTL = 10 * time.Minute

// VoiceSessionService orchestrates the voice-coaching lifecycle
type VoiceSessionService struct {
	db       *gorm.DB
	usage    *UsageService
	resolver AgentResolver
	builder  ContextBuilder
	platform SignedURLIssuer
	goals    GoalProvider
	metrics  *MetricsService
	logger   *slog.Logger
	now      func() time.Time
}

// SignedURLIssuer is the slice of the voice platform the orchestrator needs
type SignedURLIssuer interface {
	GetSignedURL(ctx context.Context, agentID string, overrides *voice.SessionOverrides) (string, error)
}

// NewVoiceSessionService wires the orchestrator
func NewVoiceSessionService(
	database *gorm.DB,
	usage *UsageService,
	resolver AgentResolver,
	builder ContextBuilder,
	platform SignedURLIssuer,
	goals GoalProvider,
	metrics *MetricsService,
) *VoiceSessionService {
	return &VoiceSessionService{
		db:       database,
		usage:    usage,
		resolver: resolver,
		builder:  builder,
		platform: platform,
		goals:    goals,
		metrics:  metrics,
		logger:   utils.GetLogger(),
		now:      time.Now,
	}
}

// CreateSession runs the full session-creation pipeline. Failure order is
// fixed: rate limit, then active-session conflict, then agent resolution.
// Context assembly after that point cannot fail. Typed errors are returned
// as-is; anything else is recorded and wrapped.
func (s *VoiceSessionService) CreateSession(ctx context.Context, userID string, req *models.CreateSessionRequest) (*models.CreateSessionResponse, error) {
	if req == nil {
		req = &models.CreateSessionRequest{}
	}

	if err := s.usage.CheckAndIncrement(ctx, userID, db.ActionVoiceCoachSession); err != nil {
		return nil, s.fail(err, userID, "check usage")
	}

	if existing, err := s.activeSession(ctx, userID); err != nil {
		return nil, s.fail(err, userID, "check active session")
	} else if existing != nil {
		return nil, s.fail(NewActiveSessionError(existing.ID), userID, "check active session")
	}

	resolved, err := s.resolver.Resolve(ctx, userID, req.PersonalityID)
	if err != nil {
		return nil, s.fail(err, userID, "resolve agent")
	}

	var uc *models.UserContext
	if req.Context != "" {
		uc = s.builder.BuildDynamicContext(ctx, userID, req.Context)
	} else {
		uc = s.builder.BuildInitialContext(ctx, userID)
	}

	now := s.now()
	session := db.CoachSession{
		ID:             fmt.Sprintf("session_%d_%s", now.UnixNano(), userID),
		UserID:         userID,
		AgentID:        resolved.AgentID,
		Status:         db.SessionStatusActive,
		GoalCount:      len(uc.Goals),
		ActiveGoalIDs:  goalIDs(uc.Goals),
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(db.SessionMaxDuration),
	}
	if resolved.Personality != nil {
		session.PersonalityID = resolved.Personality.ID
	}

	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, s.fail(fmt.Errorf("persist session: %w", err), userID, "persist session")
	}

	s.metrics.RecordSessionCreated()
	s.logger.Info("Coaching session created",
		"userID", userID, "sessionID", session.ID, "agentID", session.AgentID,
		"goals", session.GoalCount)

	return &models.CreateSessionResponse{
		SessionID: session.ID,
		AgentID:   session.AgentID,
		Context:   uc,
	}, nil
}

// GetSignedURL issues a connection credential with per-connection overrides.
// It is deliberately independent of CreateSession state: it resolves the
// agent and builds context on its own, so a client may fetch a URL without a
// stored session row. A non-empty customContext focuses the snapshot on that
// topic via semantic retrieval, same as CreateSession.
func (s *VoiceSessionService) GetSignedURL(ctx context.Context, userID, personalityID, customContext string) (*models.SignedURLResponse, error) {
	resolved, err := s.resolver.Resolve(ctx, userID, personalityID)
	if err != nil {
		return nil, s.fail(err, userID, "resolve agent")
	}

	var uc *models.UserContext
	if customContext != "" {
		uc = s.builder.BuildDynamicContext(ctx, userID, customContext)
	} else {
		uc = s.builder.BuildInitialContext(ctx, userID)
	}
	prompt := s.composeSystemPrompt(resolved, uc)
	greeting := greetingFor(uc)

	start := s.now()
	signedURL, err := s.platform.GetSignedURL(ctx, resolved.AgentID, &voice.SessionOverrides{
		SystemPrompt: prompt,
		FirstMessage: greeting,
	})
	s.metrics.RecordExternalCall("get_signed_url", s.now().Sub(start))
	if err != nil {
		return nil, s.fail(NewExternalPlatformError("get_signed_url", err), userID, "get signed url")
	}

	s.metrics.RecordSignedURL()
	return &models.SignedURLResponse{
		SignedURL: signedURL,
		ExpiresAt: s.now().Add(signedURLAdvertisedTTL),
	}, nil
}

// SaveConversation persists the transcript and closes every active session
// of the user, not only the one the conversation belongs to. Stale sessions
// from crashed clients are swept up by the same write.
func (s *VoiceSessionService) SaveConversation(ctx context.Context, userID string, req *models.SaveConversationRequest) (*models.SaveConversationResponse, error) {
	activeIDs := s.snapshotActiveGoalIDs(ctx, userID)

	conversation := db.Conversation{
		ID:             uuid.New().String(),
		UserID:         userID,
		ConversationID: req.ConversationID,
		Transcript:     req.Transcript,
		Duration:       req.Duration,
		StartedAt:      req.StartedAt,
		EndedAt:        req.EndedAt,
		Summary:        req.Summary,
		GoalCount:      len(activeIDs),
		ActiveGoalIDs:  activeIDs,
		CreatedAt:      s.now(),
	}

	if err := s.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return nil, s.fail(fmt.Errorf("persist conversation: %w", err), userID, "persist conversation")
	}

	err := s.db.WithContext(ctx).
		Model(&db.CoachSession{}).
		Where("user_id = ? AND status = ?", userID, db.SessionStatusActive).
		Updates(map[string]interface{}{
			"status":           db.SessionStatusCompleted,
			"last_activity_at": s.now(),
		}).Error
	if err != nil {
		// The conversation is already saved; session cleanup failing is not
		// worth surfacing to the client.
		s.logger.Warn("Failed to complete active sessions after save",
			"userID", userID, "error", err)
	}

	s.metrics.RecordConversationEnd(time.Duration(req.Duration)*time.Second, len(req.Transcript))
	s.logger.Info("Conversation saved",
		"userID", userID, "conversationID", req.ConversationID,
		"messages", len(req.Transcript), "duration", req.Duration)

	return &models.SaveConversationResponse{
		Success:        true,
		Message:        "conversation saved",
		ConversationID: req.ConversationID,
	}, nil
}

// activeSession returns the user's unexpired active session, or nil.
func (s *VoiceSessionService) activeSession(ctx context.Context, userID string) (*db.CoachSession, error) {
	var session db.CoachSession
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND expires_at > ?", userID, db.SessionStatusActive, s.now()).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active session: %w", err)
	}
	return &session, nil
}

func (s *VoiceSessionService) snapshotActiveGoalIDs(ctx context.Context, userID string) db.StringArray {
	goals, err := s.goals.ListGoals(ctx, userID, db.ActiveGoalStatuses)
	if err != nil {
		s.logger.Warn("Failed to snapshot active goals", "userID", userID, "error", err)
		return db.StringArray{}
	}
	ids := make(db.StringArray, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}
	return ids
}

func (s *VoiceSessionService) composeSystemPrompt(resolved *ResolvedAgent, uc *models.UserContext) string {
	rendered := s.builder.FormatContextForPrompt(uc)
	if resolved.Personality != nil && resolved.Personality.Instructions != "" {
		return resolved.Personality.Instructions + "\n\n" + rendered
	}
	return rendered
}

// fail normalizes error handling: typed errors are recorded in metrics and
// returned unchanged, everything else is logged as unexpected.
func (s *VoiceSessionService) fail(err error, userID, op string) error {
	if ce, ok := AsCoachError(err); ok {
		s.metrics.RecordError(string(ce.Kind), ce.Message, userID, "")
		s.logger.Warn("Session operation rejected",
			"userID", userID, "op", op, "kind", string(ce.Kind))
		return err
	}
	s.metrics.RecordError("internal", err.Error(), userID, "")
	s.logger.Error("Session operation failed", "userID", userID, "op", op, "error", err)
	return err
}

func goalIDs(goals []models.GoalContext) db.StringArray {
	ids := make(db.StringArray, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}
	return ids
}

// greetingFor picks the opening line by how many active goals the snapshot
// carries.
func greetingFor(uc *models.UserContext) string {
	switch len(uc.Goals) {
	case 0:
		return "Hi! I'm glad you're here. What would you like to work on today?"
	case 1:
		return fmt.Sprintf("Welcome back! Last time we talked about %q. How has it been going?", uc.Goals[0].Title)
	default:
		return fmt.Sprintf("Welcome back! You're working on %d goals right now. Which one is on your mind today?", len(uc.Goals))
	}
}
