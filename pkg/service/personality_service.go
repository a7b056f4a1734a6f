// Personality resolution: maps a user's chosen (or default) coaching
// personality to a concrete conversational-agent id, provisioning one lazily
// when absent. The environment default agent is the final fallback; "agent
// not configured" is the only terminal failure mode.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
	"github.com/KyahWill/journal-app-sub001/pkg/voice"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResolvedAgent is the outcome of personality resolution. Personality is nil
// when the environment fallback agent was used.
type ResolvedAgent struct {
	AgentID     string
	Personality *db.Personality
}

// AgentResolver resolves a user's personality to an agent id
type AgentResolver interface {
	Resolve(ctx context.Context, userID, personalityID string) (*ResolvedAgent, error)
}

// PersonalityService implements AgentResolver against the personality table
// and the voice platform.
type PersonalityService struct {
	db             *gorm.DB
	platform       voice.Platform
	metrics        *MetricsService
	defaultAgentID string
	logger         *slog.Logger
}

// NewPersonalityService creates a personality service. defaultAgentID may be
// empty; resolution then has no environment fallback.
func NewPersonalityService(database *gorm.DB, platform voice.Platform, metrics *MetricsService, defaultAgentID string) *PersonalityService {
	return &PersonalityService{
		db:             database,
		platform:       platform,
		metrics:        metrics,
		defaultAgentID: defaultAgentID,
		logger:         utils.GetLogger(),
	}
}

var _ AgentResolver = (*PersonalityService)(nil)

// Resolve maps (userID, personalityID?) to an agent id. The sequence is
// idempotent: a second call for the same user reuses the persisted agent id
// and performs no further platform writes.
func (s *PersonalityService) Resolve(ctx context.Context, userID, personalityID string) (*ResolvedAgent, error) {
	resolved, err := s.resolvePersonality(ctx, userID, personalityID)
	if err == nil {
		return resolved, nil
	}

	s.logger.Warn("Personality resolution failed, falling back to default agent",
		"userID", userID, "personalityID", personalityID, "error", err)

	if s.defaultAgentID != "" {
		return &ResolvedAgent{AgentID: s.defaultAgentID}, nil
	}
	return nil, NewAgentNotConfiguredError(err)
}

func (s *PersonalityService) resolvePersonality(ctx context.Context, userID, personalityID string) (*ResolvedAgent, error) {
	var personality *db.Personality
	var err error

	if personalityID != "" {
		// Explicit choice: not-found or foreign ownership is terminal for
		// this branch, there is no retry with the default personality.
		personality, err = s.load(ctx, userID, personalityID)
	} else {
		personality, err = s.loadOrSeedDefault(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	if personality.AgentID == nil || *personality.AgentID == "" {
		agentID, err := s.provision(ctx, personality)
		if err != nil {
			return nil, err
		}
		personality.AgentID = &agentID
	}

	return &ResolvedAgent{AgentID: *personality.AgentID, Personality: personality}, nil
}

func (s *PersonalityService) load(ctx context.Context, userID, personalityID string) (*db.Personality, error) {
	var personality db.Personality
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", personalityID, userID).
		First(&personality).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPersonalityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load personality: %w", err)
	}
	return &personality, nil
}

func (s *PersonalityService) loadOrSeedDefault(ctx context.Context, userID string) (*db.Personality, error) {
	var personality db.Personality
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		First(&personality).Error
	if err == nil {
		return &personality, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load default personality: %w", err)
	}

	return s.seedDefaults(ctx, userID)
}

// seedDefaults synthesizes the fixed personality set for a new user and
// returns the default one.
func (s *PersonalityService) seedDefaults(ctx context.Context, userID string) (*db.Personality, error) {
	defaults := DefaultPersonalities(userID)

	if err := s.db.WithContext(ctx).Create(&defaults).Error; err != nil {
		return nil, fmt.Errorf("seed default personalities: %w", err)
	}

	for i := range defaults {
		if defaults[i].IsDefault {
			return &defaults[i], nil
		}
	}
	// DefaultPersonalities always marks one default; this is unreachable.
	return &defaults[0], nil
}

// provision creates the external agent and persists the returned id before
// continuing, so later resolutions reuse it.
func (s *PersonalityService) provision(ctx context.Context, personality *db.Personality) (string, error) {
	start := time.Now()
	agentID, err := s.platform.CreateAgent(ctx, &voice.AgentSpec{
		Name:         personality.Name,
		Instructions: personality.Instructions,
		VoiceParams:  personality.VoiceParams,
	})
	if s.metrics != nil {
		s.metrics.RecordExternalCall("create_agent", time.Since(start))
	}
	if err != nil {
		return "", NewExternalPlatformError("create_agent", err)
	}

	err = s.db.WithContext(ctx).
		Model(personality).
		Updates(map[string]interface{}{"agent_id": agentID, "updated_at": time.Now()}).Error
	if err != nil {
		return "", fmt.Errorf("persist agent id: %w", err)
	}

	s.logger.Info("Provisioned agent for personality",
		"personalityID", personality.ID, "agentID", agentID)
	return agentID, nil
}

// ListPersonalities returns the user's personalities
func (s *PersonalityService) ListPersonalities(ctx context.Context, userID string) ([]db.Personality, error) {
	var personalities []db.Personality
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&personalities).Error
	if err != nil {
		return nil, fmt.Errorf("list personalities: %w", err)
	}
	return personalities, nil
}

// DefaultPersonalities is the fixed seed set for a new user. Exactly one
// entry is marked default.
func DefaultPersonalities(userID string) []db.Personality {
	return []db.Personality{
		{
			ID:     uuid.New().String(),
			UserID: userID,
			Name:   "Maya",
			Style:  "supportive",
			Instructions: "You are Maya, a warm and encouraging personal-development coach. " +
				"Celebrate progress, acknowledge setbacks without judgment, and help the " +
				"user find their own motivation. Keep answers short and conversational.",
			VoiceParams: db.JSONMap{"stability": 0.6, "similarity_boost": 0.8},
			IsDefault:   true,
		},
		{
			ID:     uuid.New().String(),
			UserID: userID,
			Name:   "Drew",
			Style:  "direct",
			Instructions: "You are Drew, a no-nonsense accountability coach. Be candid about " +
				"stalled goals, push for concrete commitments and deadlines, and follow up " +
				"on past promises. Stay respectful but firm.",
			VoiceParams: db.JSONMap{"stability": 0.4, "similarity_boost": 0.7},
		},
		{
			ID:     uuid.New().String(),
			UserID: userID,
			Name:   "Sage",
			Style:  "analytical",
			Instructions: "You are Sage, an analytical coach. Break goals into measurable " +
				"steps, reason about trade-offs out loud, and ground advice in the user's " +
				"own journal patterns. Prefer questions over prescriptions.",
			VoiceParams: db.JSONMap{"stability": 0.7, "similarity_boost": 0.6},
		},
	}
}
