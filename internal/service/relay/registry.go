package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrAlreadyRegistered = errors.New("session already registered")
	ErrUnknownSession    = errors.New("session not found")
	ErrChannelClosed     = errors.New("channel closed")
)

const writeTimeout = 10 * time.Second

// Conn is the subset of *websocket.Conn the relay uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Channel wraps a live connection. The session loop, the login flow and the
// keepalive pinger all write through it, so writes are serialized here.
type Channel struct {
	conn   Conn
	mu     sync.Mutex
	closed bool
}

func newChannel(conn Conn) *Channel {
	return &Channel{conn: conn}
}

// SendJSON writes v as one text frame.
func (c *Channel) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// Ping sends a keepalive ping frame.
func (c *Channel) Ping() error {
	return c.write(websocket.PingMessage, nil)
}

func (c *Channel) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// Close sends a close frame with code and reason and closes the connection.
// Only the first call has any effect.
func (c *Channel) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return c.conn.Close()
}

func (c *Channel) read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Entry is a snapshot of one registered session.
type Entry struct {
	Channel        *Channel
	PersonaID      *uint
	PendingTrigger *string
}

type registration struct {
	channel   *Channel
	personaID *uint
	pending   *string
}

// Registry maps live session ids to their channel and in-memory state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*registration)}
}

// Register adds a session with no persona bound.
func (r *Registry) Register(sessionID string, conn Conn) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return nil, ErrAlreadyRegistered
	}
	ch := newChannel(conn)
	r.sessions[sessionID] = &registration{channel: ch}
	return ch, nil
}

// Bind sets or replaces the persona bound to a live session.
func (r *Registry) Bind(sessionID string, personaID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	reg.personaID = &personaID
	return nil
}

// Get returns a snapshot of the session's state.
func (r *Registry) Get(sessionID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.sessions[sessionID]
	if !ok {
		return Entry{}, ErrUnknownSession
	}
	entry := Entry{Channel: reg.channel}
	if reg.personaID != nil {
		id := *reg.personaID
		entry.PersonaID = &id
	}
	if reg.pending != nil {
		turnID := *reg.pending
		entry.PendingTrigger = &turnID
	}
	return entry, nil
}

// SetPendingTrigger remembers the user turn that asked for login.
func (r *Registry) SetPendingTrigger(sessionID, turnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	reg.pending = &turnID
	return nil
}

// PendingTrigger returns the recorded trigger turn id, if any.
func (r *Registry) PendingTrigger(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.sessions[sessionID]
	if !ok || reg.pending == nil {
		return "", false
	}
	return *reg.pending, true
}

// ClearPendingTrigger drops the recorded trigger.
func (r *Registry) ClearPendingTrigger(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.sessions[sessionID]; ok {
		reg.pending = nil
	}
}

// TakePendingTrigger returns and clears the recorded trigger in one step.
func (r *Registry) TakePendingTrigger(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.sessions[sessionID]
	if !ok || reg.pending == nil {
		return "", false
	}
	turnID := *reg.pending
	reg.pending = nil
	return turnID, true
}

// Deregister removes a session. Removing an unknown id is a no-op.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
}

// CloseAll closes every registered channel with code and reason. Sessions
// stay registered until their loops notice the closed connection.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.RLock()
	channels := make([]*Channel, 0, len(r.sessions))
	for _, reg := range r.sessions {
		channels = append(channels, reg.channel)
	}
	r.mu.RUnlock()

	for _, ch := range channels {
		_ = ch.Close(code, reason)
	}
	return len(channels)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
