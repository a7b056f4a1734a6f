// Text-coaching chat: the same context pipeline as voice sessions, but the
// conversation runs through a chat model and streams back token chunks.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/KyahWill/journal-app-sub001/pkg/models"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
)

// ChatModelConfig configures the backing chat model
type ChatModelConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// CoachChatService streams text-coaching responses
type CoachChatService struct {
	resolver AgentResolver
	builder  ContextBuilder
	metrics  *MetricsService
	logger   *slog.Logger

	// newModel is swappable so tests can inject a fake stream source.
	newModel func(ctx context.Context) (model.BaseChatModel, error)
}

// NewCoachChatService creates a chat service backed by an OpenAI-compatible
// endpoint.
func NewCoachChatService(cfg ChatModelConfig, resolver AgentResolver, builder ContextBuilder, metrics *MetricsService) *CoachChatService {
	return &CoachChatService{
		resolver: resolver,
		builder:  builder,
		metrics:  metrics,
		logger:   utils.GetLogger(),
		newModel: func(ctx context.Context) (model.BaseChatModel, error) {
			return openai.NewChatModel(ctx, &openai.ChatModelConfig{
				BaseURL: cfg.BaseURL,
				APIKey:  cfg.APIKey,
				Model:   cfg.Model,
			})
		},
	}
}

// ChatStream builds a query-driven context, resolves the personality prompt
// and streams the model response as plain-text chunks. The returned channel
// is closed when the stream ends; a mid-stream failure is logged and simply
// truncates the stream.
func (s *CoachChatService) ChatStream(ctx context.Context, userID string, req *models.ChatRequest) (<-chan string, error) {
	resolved, err := s.resolver.Resolve(ctx, userID, req.PersonalityID)
	if err != nil {
		return nil, err
	}

	uc := s.builder.BuildDynamicContext(ctx, userID, req.Message)
	messages := s.composeMessages(resolved, uc, req)

	chatModel, err := s.newModel(ctx)
	if err != nil {
		return nil, NewExternalPlatformError("init_chat_model", err)
	}

	start := time.Now()
	stream, err := chatModel.Stream(ctx, messages)
	if err != nil {
		s.metrics.RecordExternalCall("chat_stream", time.Since(start))
		return nil, NewExternalPlatformError("chat_stream", err)
	}

	chunks := make(chan string)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				s.logger.Error("Chat stream interrupted", "userID", userID, "error", err)
				break
			}
			if chunk.Content == "" {
				continue
			}
			select {
			case chunks <- chunk.Content:
			case <-ctx.Done():
				return
			}
		}
		s.metrics.RecordExternalCall("chat_stream", time.Since(start))
	}()

	return chunks, nil
}

func (s *CoachChatService) composeMessages(resolved *ResolvedAgent, uc *models.UserContext, req *models.ChatRequest) []*schema.Message {
	system := s.builder.FormatContextForPrompt(uc)
	if resolved.Personality != nil && resolved.Personality.Instructions != "" {
		system = resolved.Personality.Instructions + "\n\n" + system
	}

	messages := make([]*schema.Message, 0, len(req.History)+2)
	messages = append(messages, &schema.Message{Role: schema.System, Content: system})

	for _, turn := range req.History {
		role := schema.User
		if turn.Role == "agent" {
			role = schema.Assistant
		}
		messages = append(messages, &schema.Message{Role: role, Content: turn.Content})
	}

	messages = append(messages, &schema.Message{Role: schema.User, Content: req.Message})
	return messages
}
