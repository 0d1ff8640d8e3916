package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrResponseNotFound = errors.New("bot response not found")
	ErrTurnIDRequired   = errors.New("turn id is required")
)

// Service is the durable store for sessions, turns and response details.
// Every method is one short transaction; callers hold no locks across calls.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService returns a Service writing through db.
func NewService(db *gorm.DB) *Service {
	return &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession persists a new session record. personaID may be nil for an
// anonymous session.
func (s *Service) CreateSession(ctx context.Context, sessionID string, personaID *uint) (chat.Session, error) {
	session := chat.Session{
		ID:        sessionID,
		PersonaID: personaID,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return chat.Session{}, fmt.Errorf("chat: create session %s: %w", sessionID, err)
	}
	return session, nil
}

// UpdateSessionPersona binds personaID to the stored session record.
// Rebinding the persona already stored succeeds; MySQL reports zero changed
// rows for that update, so existence is checked with a lookup instead.
func (s *Service) UpdateSessionPersona(ctx context.Context, sessionID string, personaID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session chat.Session
		if err := tx.Select("session_id").Where("session_id = ?", sessionID).Take(&session).Error; err != nil {
			return err
		}
		return tx.Model(&chat.Session{}).
			Where("session_id = ?", sessionID).
			Update("persona_id", personaID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("chat: update persona for session %s: %w", sessionID, err)
	}
	return nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var session chat.Session
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("chat: get session %s: %w", sessionID, err)
	}
	return session, nil
}

// SaveUserTurn stores a user message under the id the client supplied. The
// id only has to be unique within the session.
func (s *Service) SaveUserTurn(ctx context.Context, turn chat.Turn) (chat.Turn, error) {
	if turn.ID == "" {
		return chat.Turn{}, ErrTurnIDRequired
	}
	turn.IsUser = true
	turn.Response = nil
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}

	if err := s.db.WithContext(ctx).Create(&turn).Error; err != nil {
		return chat.Turn{}, fmt.Errorf("chat: save user turn %s: %w", turn.ID, err)
	}
	return turn, nil
}

// SaveBotTurn stores a bot message together with its response detail in one
// transaction.
func (s *Service) SaveBotTurn(ctx context.Context, turn chat.Turn, detail chat.ResponseDetail) error {
	if turn.ID == "" {
		return ErrTurnIDRequired
	}
	turn.IsUser = false
	turn.Response = nil
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	detail.ChatID = turn.ID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&turn).Error; err != nil {
			return err
		}
		detail.TurnKey = turn.Key
		if detail.PromptChatID != nil {
			var prompt chat.Turn
			err := tx.Select("turn_key").
				Where("session_id = ? AND id = ? AND is_user = ?", turn.SessionID, *detail.PromptChatID, true).
				Take(&prompt).Error
			switch {
			case err == nil:
				detail.PromptTurnKey = &prompt.Key
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}
		return tx.Create(&detail).Error
	})
	if err != nil {
		return fmt.Errorf("chat: save bot turn %s: %w", turn.ID, err)
	}
	return nil
}

// UpdateFeedback records whether the bot turn botTurnID was helpful.
func (s *Service) UpdateFeedback(ctx context.Context, botTurnID string, helpful bool) (chat.ResponseDetail, error) {
	var detail chat.ResponseDetail
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", botTurnID).First(&detail).Error; err != nil {
			return err
		}
		detail.IsHelpful = &helpful
		return tx.Model(&chat.ResponseDetail{}).
			Where("chat_id = ?", botTurnID).
			Update("is_helpful", helpful).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.ResponseDetail{}, ErrResponseNotFound
	}
	if err != nil {
		return chat.ResponseDetail{}, fmt.Errorf("chat: update feedback %s: %w", botTurnID, err)
	}
	return detail, nil
}

// LoadTranscript returns the turns of a session in creation order.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	var turns []chat.Turn
	err := s.db.WithContext(ctx).
		Preload("Response").
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("is_user DESC").
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("chat: load transcript %s: %w", sessionID, err)
	}
	return turns, nil
}
