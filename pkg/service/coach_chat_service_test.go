package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/models"
)

type fakeChatModel struct {
	chunks   []string
	streamEr error
	got      []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return &schema.Message{Role: schema.Assistant, Content: strings.Join(f.chunks, "")}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.got = in
	if f.streamEr != nil {
		return nil, f.streamEr
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks))
	go func() {
		defer sw.Close()
		for _, c := range f.chunks {
			sw.Send(&schema.Message{Role: schema.Assistant, Content: c}, nil)
		}
	}()
	return sr, nil
}

func newChatTestService(fake *fakeChatModel) *CoachChatService {
	resolver := &fakeResolver{resolved: &ResolvedAgent{
		AgentID: "agent_test",
		Personality: &db.Personality{
			ID: "p1", UserID: "user1", Name: "Maya", Instructions: "Be warm.",
		},
	}}
	builder := &fakeBuilder{uc: &models.UserContext{}}
	svc := NewCoachChatService(ChatModelConfig{}, resolver, builder, NewMetricsService())
	svc.newModel = func(ctx context.Context) (model.BaseChatModel, error) { return fake, nil }
	return svc
}

func TestChatStream_ForwardsChunksInOrder(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"You", " are", " doing", " great"}}
	svc := newChatTestService(fake)

	chunks, err := svc.ChatStream(context.Background(), "user1", &models.ChatRequest{Message: "How am I doing?"})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var got []string
	for c := range chunks {
		got = append(got, c)
	}
	if strings.Join(got, "") != "You are doing great" {
		t.Fatalf("chunks out of order or missing: %v", got)
	}
}

func TestChatStream_ComposesSystemPromptAndHistory(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"ok"}}
	svc := newChatTestService(fake)

	chunks, err := svc.ChatStream(context.Background(), "user1", &models.ChatRequest{
		Message: "What next?",
		History: []models.ChatTurn{
			{Role: "user", Content: "I started running"},
			{Role: "agent", Content: "That is a great start"},
		},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	for range chunks {
	}

	if len(fake.got) != 4 {
		t.Fatalf("expected system + 2 history + user messages, got %d", len(fake.got))
	}
	if fake.got[0].Role != schema.System || !strings.HasPrefix(fake.got[0].Content, "Be warm.") {
		t.Fatalf("system prompt wrong: %+v", fake.got[0])
	}
	if fake.got[1].Role != schema.User || fake.got[2].Role != schema.Assistant {
		t.Fatalf("history roles wrong: %s, %s", fake.got[1].Role, fake.got[2].Role)
	}
	if fake.got[3].Role != schema.User || fake.got[3].Content != "What next?" {
		t.Fatalf("final user message wrong: %+v", fake.got[3])
	}
}

func TestChatStream_StreamFailureIsTyped(t *testing.T) {
	fake := &fakeChatModel{streamEr: errors.New("model unavailable")}
	svc := newChatTestService(fake)

	_, err := svc.ChatStream(context.Background(), "user1", &models.ChatRequest{Message: "hello"})
	ce, ok := AsCoachError(err)
	if !ok || ce.Kind != ErrKindExternalPlatform {
		t.Fatalf("expected external-platform error, got %v", err)
	}
}
