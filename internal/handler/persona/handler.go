package persona

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建persona处理器
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由。登录页和聊天页使用同一个列表。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/personas", h.handleListPersonas)
	r.Get("/login/personas", h.handleListPersonas)
}

// handleListPersonas 列出所有persona
func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := h.personas.List(r.Context())
	if err != nil {
		log.Printf("[persona] list failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error: DB operation failed")
		return
	}
	if personas == nil {
		personas = []persona.Persona{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"personas": personas})
}
