package login

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-relay/backend/internal/service/answer"
	relayservice "github.com/zhouzirui/chat-relay/backend/internal/service/relay"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

// Handler 登录相关的HTTP处理器
type Handler struct {
	svc *relayservice.Service
}

// New 创建登录处理器
func New(svc *relayservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册登录路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/login/", h.handleLogin)
	r.Post("/login/persona_id", h.handlePersonaID)
}

type loginRequest struct {
	SessionID string `json:"session_id"`
	PersonaID *uint  `json:"persona_id"`
}

type loginResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	PersonaID uint   `json:"persona_id"`
	Delivered bool   `json:"delivered"`
	Persisted bool   `json:"persisted"`
}

// handleLogin 将persona绑定到在线会话并推送一条推荐消息
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusUnprocessableEntity, "session_id is required")
		return
	}
	if payload.PersonaID == nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, "persona_id is required")
		return
	}

	outcome, err := h.svc.Login(r.Context(), payload.SessionID, *payload.PersonaID)
	if err != nil {
		status, message := loginErrorStatus(err)
		if status >= http.StatusInternalServerError {
			log.Printf("[login] session=%s persona=%d failed: %v", payload.SessionID, *payload.PersonaID, err)
		}
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, loginResponse{
		Status:    "success",
		SessionID: outcome.SessionID,
		PersonaID: outcome.PersonaID,
		Delivered: outcome.Delivered,
		Persisted: outcome.Persisted,
	})
}

func loginErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, relayservice.ErrUnknownSession):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, relayservice.ErrInvalidPersona):
		return http.StatusNotFound, "Persona not found"
	case errors.Is(err, answer.ErrRecommendation):
		return http.StatusBadGateway, "Recommendation service failed"
	default:
		return http.StatusInternalServerError, "Internal Server Error: DB operation failed"
	}
}

// handlePersonaID 返回在线会话当前绑定的persona
func (h *Handler) handlePersonaID(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusUnprocessableEntity, "session_id is required")
		return
	}

	entry, err := h.svc.Registry().Get(payload.SessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]*uint{"persona_id": entry.PersonaID})
}
