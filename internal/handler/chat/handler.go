package chat

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

// Handler 聊天记录与反馈的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/history/{sessionID}", h.handleHistory)
	r.Post("/chat/feedback", h.handleFeedback)
}

type historyItem struct {
	MessageID string    `json:"message_id"`
	IsUser    bool      `json:"is_user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	IsHelpful *bool     `json:"is_helpful,omitempty"`
}

// handleHistory 按时间顺序返回会话的全部消息
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Session not found")
			return
		}
		log.Printf("[chat] get session %s failed: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error: DB operation failed")
		return
	}

	turns, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		log.Printf("[chat] load transcript %s failed: %v", sessionID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error: DB operation failed")
		return
	}

	history := make([]historyItem, 0, len(turns))
	for _, turn := range turns {
		item := historyItem{
			MessageID: turn.ID,
			IsUser:    turn.IsUser,
			Content:   turn.Content,
			CreatedAt: turn.CreatedAt,
		}
		if turn.Response != nil {
			item.IsHelpful = turn.Response.IsHelpful
		}
		history = append(history, item)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"history":    history,
	})
}

// handleFeedback 记录用户对机器人回复的评价
func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MessageID string `json:"message_id"`
		IsHelpful *bool  `json:"is_helpful"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if payload.MessageID == "" || payload.IsHelpful == nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, "message_id and is_helpful are required")
		return
	}

	detail, err := h.chatSvc.UpdateFeedback(r.Context(), payload.MessageID, *payload.IsHelpful)
	if err != nil {
		if errors.Is(err, chatService.ErrResponseNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Message not found")
			return
		}
		log.Printf("[chat] feedback for %s failed: %v", payload.MessageID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error: DB operation failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":            "success",
		"message_id":        detail.ChatID,
		"feedback_received": *detail.IsHelpful,
	})
}
