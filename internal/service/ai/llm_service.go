package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
	"github.com/zhouzirui/chat-relay/backend/internal/service/answer"
)

const historyLimit = 10

// Transcripts gives the model access to the stored conversation.
type Transcripts interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error)
}

// Service answers turns with an Ark chat model instead of the external
// answer service. It satisfies the same Ask/Recommend contract.
type Service struct {
	personas    persona.Store
	transcripts Transcripts
	invoke      func(ctx context.Context, input map[string]any) (*schema.Message, error)
}

// NewService creates an Ark-backed answerer.
func NewService(ctx context.Context, personas persona.Store, transcripts Transcripts, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newServiceWithModel(ctx, personas, transcripts, chatModel)
}

func newServiceWithModel(ctx context.Context, personas persona.Store, transcripts Transcripts, chatModel model.ChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		personas:    personas,
		transcripts: transcripts,
		invoke: func(ctx context.Context, input map[string]any) (*schema.Message, error) {
			return runnable.Invoke(ctx, input)
		},
	}, nil
}

// Ask generates a plain answer for query in the context of the session's
// history and bound persona.
func (s *Service) Ask(ctx context.Context, query, sessionID string) answer.Result {
	session, err := s.transcripts.GetSession(ctx, sessionID)
	if err != nil {
		log.Printf("[ai] load session failed session=%s: %v", sessionID, err)
		return answer.Failed(fmt.Errorf("%w: %v", answer.ErrUnreachable, err))
	}

	var p *persona.Persona
	if session.PersonaID != nil {
		if found, err := s.personas.FindByID(ctx, *session.PersonaID); err == nil {
			p = &found
		} else if !errors.Is(err, persona.ErrNotFound) {
			log.Printf("[ai] load persona failed session=%s: %v", sessionID, err)
		}
	}

	turns, err := s.transcripts.LoadTranscript(ctx, sessionID)
	if err != nil {
		log.Printf("[ai] load transcript failed session=%s: %v", sessionID, err)
		turns = nil
	}

	input := map[string]any{
		"system":  BuildSystemPrompt(p),
		"history": buildHistoryMessages(dropPendingQuery(turns, query)),
		"query":   query,
	}
	response, err := s.invoke(ctx, input)
	if err != nil {
		return answer.Failed(fmt.Errorf("%w: %v", answer.ErrUnreachable, err))
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return answer.Failed(fmt.Errorf("%w: empty model output", answer.ErrMalformed))
	}

	log.Printf("[ai] generated response for session=%s, length=%d", sessionID, len(response.Content))
	return answer.Plain(response.Content)
}

// Recommend produces the proactive post-login recommendation for a persona.
func (s *Service) Recommend(ctx context.Context, sessionID string, personaID uint) (answer.Result, error) {
	p, err := s.personas.FindByID(ctx, personaID)
	if err != nil {
		return answer.Result{}, fmt.Errorf("%w: %w", answer.ErrRecommendation, err)
	}

	input := map[string]any{
		"system":  BuildSystemPrompt(&p),
		"history": []*schema.Message(nil),
		"query":   recommendationQuery,
	}
	response, err := s.invoke(ctx, input)
	if err != nil {
		return answer.Result{}, fmt.Errorf("%w: %w", answer.ErrRecommendation, err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return answer.Result{}, fmt.Errorf("%w: %w", answer.ErrRecommendation, answer.ErrMalformed)
	}

	log.Printf("[ai] generated recommendation for session=%s, persona=%d", sessionID, personaID)
	return answer.Result{
		Text: response.Content,
		Tool: &answer.Tool{Name: answer.RecommendToolName},
	}, nil
}

// dropPendingQuery removes the just-persisted user turn so the query is not
// sent twice.
func dropPendingQuery(turns []chat.Turn, query string) []chat.Turn {
	if n := len(turns); n > 0 && turns[n-1].IsUser && turns[n-1].Content == query {
		return turns[:n-1]
	}
	return turns
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		if turn.IsUser {
			history = append(history, schema.UserMessage(turn.Content))
		} else {
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
