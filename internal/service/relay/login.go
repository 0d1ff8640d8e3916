package relay

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
	"github.com/zhouzirui/chat-relay/backend/internal/service/answer"
)

// ErrInvalidPersona is returned when login names a persona that does not exist.
var ErrInvalidPersona = errors.New("invalid persona")

// LoginOutcome describes what happened to the proactive recommendation.
type LoginOutcome struct {
	SessionID string
	PersonaID uint
	Delivered bool
	Persisted bool
}

// Login binds personaID to a live session and pushes one recommendation
// message into it. Logging in again replaces the binding.
func (s *Service) Login(ctx context.Context, sessionID string, personaID uint) (LoginOutcome, error) {
	outcome := LoginOutcome{SessionID: sessionID, PersonaID: personaID}

	entry, err := s.registry.Get(sessionID)
	if err != nil {
		return outcome, err
	}
	if _, err := s.personas.FindByID(ctx, personaID); err != nil {
		if errors.Is(err, persona.ErrNotFound) {
			return outcome, ErrInvalidPersona
		}
		return outcome, fmt.Errorf("relay: look up persona %d: %w", personaID, err)
	}

	if err := s.registry.Bind(sessionID, personaID); err != nil {
		return outcome, err
	}
	if err := s.store.UpdateSessionPersona(ctx, sessionID, personaID); err != nil {
		return outcome, fmt.Errorf("relay: persist persona for session %s: %w", sessionID, err)
	}
	log.Printf("[relay] session %s bound to persona %d", sessionID, personaID)

	result, err := s.answers.Recommend(ctx, sessionID, personaID)
	if err != nil {
		if !errors.Is(err, answer.ErrRecommendation) {
			err = fmt.Errorf("%w: %w", answer.ErrRecommendation, err)
		}
		return outcome, err
	}
	if result.Tool == nil {
		result.Tool = &answer.Tool{}
	}
	if result.Tool.Name == "" {
		result.Tool.Name = answer.RecommendToolName
	}

	var promptID *string
	if turnID, ok := s.registry.TakePendingTrigger(sessionID); ok {
		promptID = &turnID
	}

	msg, turn, detail := s.buildBotTurn(sessionID, &personaID, promptID, result)
	delivery := s.deliver(ctx, entry.Channel, msg, turn, detail)
	outcome.Delivered = delivery.SendErr == nil
	outcome.Persisted = delivery.PersistErr == nil
	if delivery.SendErr != nil {
		log.Printf("[relay] session %s send recommendation failed: %v", sessionID, delivery.SendErr)
	}
	if delivery.PersistErr != nil {
		log.Printf("[relay] session %s save recommendation failed: %v", sessionID, delivery.PersistErr)
	}
	return outcome, nil
}
