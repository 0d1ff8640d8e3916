package relay

import (
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	relayservice "github.com/zhouzirui/chat-relay/backend/internal/service/relay"
)

// Handler WebSocket聊天入口
type Handler struct {
	svc      *relayservice.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器。origin 为空或 "*" 时接受任意来源。
func New(svc *relayservice.Service, origin string) *Handler {
	origin = strings.TrimSpace(origin)
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if origin == "" || origin == "*" {
					return true
				}
				return r.Header.Get("Origin") == origin
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

// handleWebSocket 升级连接并运行会话，直到客户端断开
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	h.svc.Serve(r.Context(), conn)
}
