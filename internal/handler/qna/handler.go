package qna

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	qnamodel "github.com/zhouzirui/chat-relay/backend/internal/model/qna"
	"github.com/zhouzirui/chat-relay/backend/pkg/utils"
)

// Refresher reloads top entries into the QnA cache.
type Refresher interface {
	RefreshFAQs(ctx context.Context, k int) ([]qnamodel.FAQ, error)
	RefreshTerms(ctx context.Context, k int) ([]qnamodel.Term, error)
}

// Handler FAQ与术语查询
type Handler struct {
	cache     Refresher
	faqTopK   int
	termsTopK int
}

// New 创建QnA处理器。cache 为 nil 时接口返回 503。
func New(cache Refresher, faqTopK, termsTopK int) *Handler {
	return &Handler{cache: cache, faqTopK: faqTopK, termsTopK: termsTopK}
}

// RegisterRoutes 注册QnA路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/qna/faq", h.handleFAQ)
	r.Get("/qna/terms", h.handleTerms)
}

func (h *Handler) handleFAQ(w http.ResponseWriter, r *http.Request) {
	k, ok := h.topK(w, r, h.faqTopK)
	if !ok {
		return
	}
	items, err := h.cache.RefreshFAQs(r.Context(), k)
	if err != nil {
		log.Printf("[qna] load top %d faqs failed: %v", k, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error: DB operation failed")
		return
	}
	if items == nil {
		items = []qnamodel.FAQ{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"faqs": items})
}

func (h *Handler) handleTerms(w http.ResponseWriter, r *http.Request) {
	k, ok := h.topK(w, r, h.termsTopK)
	if !ok {
		return
	}
	items, err := h.cache.RefreshTerms(r.Context(), k)
	if err != nil {
		log.Printf("[qna] load top %d terms failed: %v", k, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal Server Error: DB operation failed")
		return
	}
	if items == nil {
		items = []qnamodel.Term{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"terms": items})
}

// topK parses the top_k query parameter and writes the error response itself.
func (h *Handler) topK(w http.ResponseWriter, r *http.Request, defaultK int) (int, bool) {
	if h.cache == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "qna cache unavailable")
		return 0, false
	}
	raw := r.URL.Query().Get("top_k")
	if raw == "" {
		return defaultK, true
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 {
		utils.RespondError(w, http.StatusUnprocessableEntity, "top_k must be a positive integer")
		return 0, false
	}
	return k, true
}
