package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-relay/backend/internal/db"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
)

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	gdb, err := db.Connect("sqlite://:memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	chatSvc := chatservice.NewService(gdb)

	r := chi.NewRouter()
	New(chatSvc).RegisterRoutes(r)
	return r, chatSvc
}

func seedConversation(t *testing.T, svc *chatservice.Service) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if _, err := svc.CreateSession(ctx, "s-1", nil); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if _, err := svc.SaveUserTurn(ctx, chat.Turn{ID: "m1", SessionID: "s-1", Content: "hi", CreatedAt: base}); err != nil {
		t.Fatalf("SaveUserTurn err: %v", err)
	}
	prompt := "m1"
	bot := chat.Turn{ID: "b1", SessionID: "s-1", Content: "Hello!", CreatedAt: base.Add(time.Second)}
	if err := svc.SaveBotTurn(ctx, bot, chat.ResponseDetail{PromptChatID: &prompt}); err != nil {
		t.Fatalf("SaveBotTurn err: %v", err)
	}
}

func TestHistory(t *testing.T) {
	r, svc := setupRouter(t)
	seedConversation(t, svc)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/history/s-1", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		SessionID string        `json:"session_id"`
		History   []historyItem `json:"history"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.SessionID != "s-1" || len(body.History) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if !body.History[0].IsUser || body.History[1].IsUser || body.History[1].MessageID != "b1" {
		t.Fatalf("history out of order: %+v", body.History)
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	r, _ := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/history/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func postFeedback(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat/feedback", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestFeedback(t *testing.T) {
	r, svc := setupRouter(t)
	seedConversation(t, svc)

	resp := postFeedback(r, `{"message_id":"b1","is_helpful":false}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["status"] != "success" || body["message_id"] != "b1" || body["feedback_received"] != false {
		t.Fatalf("unexpected body: %v", body)
	}

	turns, _ := svc.LoadTranscript(context.Background(), "s-1")
	if h := turns[1].Response.IsHelpful; h == nil || *h {
		t.Fatalf("feedback not stored: %v", h)
	}
}

func TestFeedbackErrors(t *testing.T) {
	r, svc := setupRouter(t)
	seedConversation(t, svc)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"user turn has no response", `{"message_id":"m1","is_helpful":true}`, http.StatusNotFound},
		{"unknown message", `{"message_id":"nope","is_helpful":true}`, http.StatusNotFound},
		{"missing flag", `{"message_id":"b1"}`, http.StatusUnprocessableEntity},
		{"missing id", `{"is_helpful":true}`, http.StatusUnprocessableEntity},
		{"not json", `yes`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if resp := postFeedback(r, tc.body); resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}
