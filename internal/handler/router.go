package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chat-relay/backend/internal/handler/chat"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/login"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/persona"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/qna"
	"github.com/zhouzirui/chat-relay/backend/internal/handler/relay"
	middlewarePkg "github.com/zhouzirui/chat-relay/backend/internal/middleware"
	personaModel "github.com/zhouzirui/chat-relay/backend/internal/model/persona"
	chatService "github.com/zhouzirui/chat-relay/backend/internal/service/chat"
	relayService "github.com/zhouzirui/chat-relay/backend/internal/service/relay"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

// Deps groups what the router needs. QnA may be nil when no FAQ database is
// configured.
type Deps struct {
	Personas       personaModel.Store
	Chats          *chatService.Service
	Relay          *relayService.Service
	QnA            qna.Refresher
	FAQTopK        int
	TermsTopK      int
	FrontendOrigin string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.FrontendOrigin))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "chat relay backend"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":   "ok",
				"sessions": deps.Relay.Registry().Len(),
			})
		})

		relay.New(deps.Relay, deps.FrontendOrigin).RegisterRoutes(api)
		login.New(deps.Relay).RegisterRoutes(api)
		persona.New(deps.Personas).RegisterRoutes(api)
		chat.New(deps.Chats).RegisterRoutes(api)
		qna.New(deps.QnA, deps.FAQTopK, deps.TermsTopK).RegisterRoutes(api)
	})

	return r
}
