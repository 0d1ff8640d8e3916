// Package relay runs the per-connection chat loop and the out-of-band login
// flow that pushes a proactive recommendation into a live session.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
	"github.com/zhouzirui/chat-relay/backend/internal/service/answer"
)

const (
	invalidJSONText  = "Invalid JSON format"
	dbErrorText      = "Internal Server Error: DB operation failed"
	unknownErrorText = "Internal Server Error: Unknown error occurred"

	defaultPingInterval = 54 * time.Second
)

// Store is the durable side of a session.
type Store interface {
	CreateSession(ctx context.Context, sessionID string, personaID *uint) (chat.Session, error)
	UpdateSessionPersona(ctx context.Context, sessionID string, personaID uint) error
	SaveUserTurn(ctx context.Context, turn chat.Turn) (chat.Turn, error)
	SaveBotTurn(ctx context.Context, turn chat.Turn, detail chat.ResponseDetail) error
}

// Answerer produces bot replies. Ask never returns a Go error; failures are
// carried in the result.
type Answerer interface {
	Ask(ctx context.Context, query, sessionID string) answer.Result
	Recommend(ctx context.Context, sessionID string, personaID uint) (answer.Result, error)
}

// Cache resolves exact-match canned answers.
type Cache interface {
	Lookup(ctx context.Context, text string) (string, bool)
}

// Personas checks persona ids during login.
type Personas interface {
	FindByID(ctx context.Context, id uint) (persona.Persona, error)
}

// Options tunes the relay.
type Options struct {
	// PingInterval is the keepalive period. Zero uses the default; negative
	// disables pings.
	PingInterval time.Duration
}

// Service owns the registry and drives every live session.
type Service struct {
	registry     *Registry
	store        Store
	answers      Answerer
	cache        Cache
	personas     Personas
	pingInterval time.Duration
	newID        func() string
	now          func() time.Time

	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

// NewService wires the relay. cache may be nil, in which case every turn goes
// to the answerer.
func NewService(registry *Registry, store Store, answers Answerer, cache Cache, personas Personas, opts Options) *Service {
	if registry == nil {
		registry = NewRegistry()
	}
	interval := opts.PingInterval
	if interval == 0 {
		interval = defaultPingInterval
	}
	return &Service{
		registry:     registry,
		store:        store,
		answers:      answers,
		cache:        cache,
		personas:     personas,
		pingInterval: interval,
		newID:        uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Registry exposes the live-session registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

type sessionAnnouncement struct {
	SessionID string `json:"session_id"`
}

type errorFrame struct {
	Error string `json:"error"`
}

type inboundMessage struct {
	MessageID string
	Message   string
}

// Serve runs one session on conn until the client goes away or a turn fails
// unexpectedly. It returns when the session is over.
func (s *Service) Serve(ctx context.Context, conn Conn) {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()
	defer s.sessions.Done()

	sessionID := s.newID()
	ch, err := s.registry.Register(sessionID, conn)
	if err != nil {
		log.Printf("[relay] register session %s failed: %v", sessionID, err)
		_ = conn.Close()
		return
	}
	defer s.registry.Deregister(sessionID)
	defer ch.Close(websocket.CloseNormalClosure, "")

	if _, err := s.store.CreateSession(ctx, sessionID, nil); err != nil {
		log.Printf("[relay] persist session %s failed: %v", sessionID, err)
		_ = ch.Close(websocket.CloseInternalServerErr, "session persistence failed")
		return
	}
	if err := ch.SendJSON(sessionAnnouncement{SessionID: sessionID}); err != nil {
		log.Printf("[relay] announce session %s failed: %v", sessionID, err)
		return
	}
	log.Printf("[relay] session %s connected", sessionID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.pingInterval > 0 {
		go s.pingLoop(ctx, ch)
	}

	for {
		data, err := ch.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("[relay] session %s read error: %v", sessionID, err)
			}
			log.Printf("[relay] session %s disconnected", sessionID)
			return
		}

		if err := s.handleFrame(ctx, sessionID, ch, data); err != nil {
			log.Printf("[relay] session %s aborted: %v", sessionID, err)
			_ = ch.SendJSON(errorFrame{Error: unknownErrorText})
			_ = ch.Close(websocket.CloseInternalServerErr, "internal error")
			return
		}
	}
}

// Shutdown refuses new sessions, closes the live ones with 1001 and waits
// for their loops to finish the turn in flight, including its persistence.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	if n := s.registry.CloseAll(websocket.CloseGoingAway, "server shutting down"); n > 0 {
		log.Printf("[relay] closing %d live sessions", n)
	}

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay: drain sessions: %w", ctx.Err())
	}
}

// handleFrame processes one inbound frame. A returned error ends the session.
func (s *Service) handleFrame(ctx context.Context, sessionID string, ch *Channel, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	in, ok := parseInbound(data)
	if !ok {
		return ch.SendJSON(errorFrame{Error: invalidJSONText})
	}

	entry, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}

	userTurn := chat.Turn{
		ID:        in.MessageID,
		SessionID: sessionID,
		PersonaID: entry.PersonaID,
		IsUser:    true,
		Content:   in.Message,
		CreatedAt: s.now(),
	}
	if _, err := s.store.SaveUserTurn(ctx, userTurn); err != nil {
		log.Printf("[relay] session %s save user turn %s failed: %v", sessionID, in.MessageID, err)
		return ch.SendJSON(errorFrame{Error: dbErrorText})
	}

	result := s.resolve(ctx, sessionID, in.Message)
	if result.LoginRequired() {
		if err := s.registry.SetPendingTrigger(sessionID, in.MessageID); err != nil {
			return err
		}
	}

	promptID := in.MessageID
	msg, turn, detail := s.buildBotTurn(sessionID, entry.PersonaID, &promptID, result)
	delivery := s.deliver(ctx, ch, msg, turn, detail)
	if delivery.PersistErr != nil {
		log.Printf("[relay] session %s save bot turn %s failed: %v", sessionID, turn.ID, delivery.PersistErr)
	}
	if delivery.SendErr != nil {
		return fmt.Errorf("send bot turn %s: %w", turn.ID, delivery.SendErr)
	}
	return nil
}

// resolve answers from the QnA cache when possible, else asks the answer
// service.
func (s *Service) resolve(ctx context.Context, sessionID, query string) answer.Result {
	if s.cache != nil {
		if text, ok := s.cache.Lookup(ctx, query); ok {
			return answer.Plain(text)
		}
	}
	result := s.answers.Ask(ctx, query, sessionID)
	if result.Err != nil {
		log.Printf("[relay] session %s answer failed: %v", sessionID, result.Err)
	}
	return result
}

// parseInbound accepts a JSON object with non-empty string message_id and
// message fields.
func parseInbound(data []byte) (inboundMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return inboundMessage{}, false
	}

	var in inboundMessage
	if err := json.Unmarshal(fields["message_id"], &in.MessageID); err != nil {
		return inboundMessage{}, false
	}
	if err := json.Unmarshal(fields["message"], &in.Message); err != nil {
		return inboundMessage{}, false
	}
	if strings.TrimSpace(in.MessageID) == "" || in.Message == "" {
		return inboundMessage{}, false
	}
	return in, true
}

// pingLoop sends keepalive pings until ctx ends or a write fails.
func (s *Service) pingLoop(ctx context.Context, ch *Channel) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ch.Ping(); err != nil {
				return
			}
		}
	}
}
