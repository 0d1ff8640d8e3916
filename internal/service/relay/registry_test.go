package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// recordingConn captures writes and flags overlapping WriteMessage calls.
type recordingConn struct {
	mu      sync.Mutex
	frames  [][]byte
	types   []int
	closed  bool
	writing atomic.Int32
	overlap atomic.Bool
	failErr error
}

func (c *recordingConn) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("recordingConn: read not supported")
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	if c.writing.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.writing.Add(-1)
	time.Sleep(time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failErr != nil {
		return c.failErr
	}
	c.types = append(c.types, messageType)
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) textFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for i, data := range c.frames {
		if c.types[i] == websocket.TextMessage {
			out = append(out, data)
		}
	}
	return out
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Register("s-1", &recordingConn{}); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if _, err := reg.Register("s-1", &recordingConn{}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", reg.Len())
	}
}

func TestRegistryUnknownSession(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get("missing"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Get: expected ErrUnknownSession, got %v", err)
	}
	if err := reg.Bind("missing", 1); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Bind: expected ErrUnknownSession, got %v", err)
	}
	if err := reg.SetPendingTrigger("missing", "m1"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("SetPendingTrigger: expected ErrUnknownSession, got %v", err)
	}
	if _, ok := reg.PendingTrigger("missing"); ok {
		t.Fatal("PendingTrigger should miss for unknown session")
	}
	reg.ClearPendingTrigger("missing")
	reg.Deregister("missing")
}

func TestRegistryBindOverwritesAndSnapshots(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Register("s-1", &recordingConn{}); err != nil {
		t.Fatalf("Register err: %v", err)
	}

	entry, _ := reg.Get("s-1")
	if entry.PersonaID != nil || entry.PendingTrigger != nil {
		t.Fatalf("fresh entry should be empty: %+v", entry)
	}

	if err := reg.Bind("s-1", 1); err != nil {
		t.Fatalf("Bind err: %v", err)
	}
	snapshot, _ := reg.Get("s-1")
	if err := reg.Bind("s-1", 2); err != nil {
		t.Fatalf("rebind err: %v", err)
	}

	if *snapshot.PersonaID != 1 {
		t.Fatalf("snapshot must not see later binds, got %d", *snapshot.PersonaID)
	}
	latest, _ := reg.Get("s-1")
	if *latest.PersonaID != 2 {
		t.Fatalf("expected persona 2, got %d", *latest.PersonaID)
	}
}

func TestRegistryPendingTrigger(t *testing.T) {
	reg := NewRegistry()
	reg.Register("s-1", &recordingConn{})

	if err := reg.SetPendingTrigger("s-1", "m1"); err != nil {
		t.Fatalf("SetPendingTrigger err: %v", err)
	}
	if got, ok := reg.PendingTrigger("s-1"); !ok || got != "m1" {
		t.Fatalf("PendingTrigger = %q, %v", got, ok)
	}
	reg.SetPendingTrigger("s-1", "m2")
	if got, ok := reg.TakePendingTrigger("s-1"); !ok || got != "m2" {
		t.Fatalf("TakePendingTrigger = %q, %v", got, ok)
	}
	if _, ok := reg.PendingTrigger("s-1"); ok {
		t.Fatal("trigger should be consumed")
	}

	reg.SetPendingTrigger("s-1", "m3")
	reg.ClearPendingTrigger("s-1")
	if _, ok := reg.TakePendingTrigger("s-1"); ok {
		t.Fatal("trigger should be cleared")
	}
}

func TestRegistryDeregisterIdempotent(t *testing.T) {
	reg := NewRegistry()
	reg.Register("s-1", &recordingConn{})
	reg.Deregister("s-1")
	reg.Deregister("s-1")
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	if _, err := reg.Register("s-1", &recordingConn{}); err != nil {
		t.Fatalf("re-register after deregister: %v", err)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i)
			if _, err := reg.Register(id, &recordingConn{}); err != nil {
				t.Errorf("Register %s: %v", id, err)
				return
			}
			for p := uint(1); p <= 3; p++ {
				if err := reg.Bind(id, p); err != nil {
					t.Errorf("Bind %s: %v", id, err)
				}
				reg.SetPendingTrigger(id, fmt.Sprintf("m-%d", p))
				reg.Get(id)
			}
			if i%2 == 0 {
				reg.Deregister(id)
			}
		}(i)
	}
	wg.Wait()

	if reg.Len() != 25 {
		t.Fatalf("expected 25 live sessions, got %d", reg.Len())
	}
	entry, err := reg.Get("s-1")
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if *entry.PersonaID != 3 || *entry.PendingTrigger != "m-3" {
		t.Fatalf("unexpected final state: persona=%d trigger=%s", *entry.PersonaID, *entry.PendingTrigger)
	}
}

func TestChannelSerializesWrites(t *testing.T) {
	conn := &recordingConn{}
	ch := newChannel(conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%5 == 0 {
				ch.Ping()
				return
			}
			if err := ch.SendJSON(map[string]int{"n": i}); err != nil {
				t.Errorf("SendJSON: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if conn.overlap.Load() {
		t.Fatal("writes overlapped")
	}
	frames := conn.textFrames()
	if len(frames) != 16 {
		t.Fatalf("expected 16 text frames, got %d", len(frames))
	}
	for _, data := range frames {
		var v map[string]int
		if err := json.Unmarshal(data, &v); err != nil {
			t.Fatalf("frame is not JSON: %q", data)
		}
	}
}

func TestChannelCloseOnce(t *testing.T) {
	conn := &recordingConn{}
	ch := newChannel(conn)

	if err := ch.Close(websocket.CloseInternalServerErr, "boom"); err != nil {
		t.Fatalf("Close err: %v", err)
	}
	if err := ch.Close(websocket.CloseNormalClosure, ""); err != nil {
		t.Fatalf("second Close err: %v", err)
	}
	if !conn.closed {
		t.Fatal("underlying conn should be closed")
	}
	if len(conn.frames) != 1 || conn.types[0] != websocket.CloseMessage {
		t.Fatalf("expected exactly one close frame, got %d frames", len(conn.frames))
	}
	if err := ch.SendJSON(map[string]string{"a": "b"}); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	reg := NewRegistry()
	conns := []*recordingConn{{}, {}}
	for i, conn := range conns {
		if _, err := reg.Register(fmt.Sprintf("s-%d", i), conn); err != nil {
			t.Fatalf("Register err: %v", err)
		}
	}

	if n := reg.CloseAll(websocket.CloseGoingAway, "bye"); n != len(conns) {
		t.Fatalf("CloseAll closed %d channels, want %d", n, len(conns))
	}
	for i, conn := range conns {
		if !conn.closed || len(conn.frames) != 1 || conn.types[0] != websocket.CloseMessage {
			t.Fatalf("conn %d not closed with a close frame", i)
		}
	}
	if reg.Len() != len(conns) {
		t.Fatal("CloseAll must leave deregistration to the session loops")
	}
}
