package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/qanda/internal/content"
	"github.com/hitoshi/qanda/internal/middleware"
)

// DocumentHandler は取り込み済みドキュメントの配信ハンドラー。
type DocumentHandler struct {
	store *content.Store
}

// NewDocumentHandler はDocumentHandlerを生成する。
func NewDocumentHandler(store *content.Store) *DocumentHandler {
	return &DocumentHandler{store: store}
}

// documentSummary は一覧応答の1エントリ。
type documentSummary struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Tags     []string  `json:"tags"`
	LoadedAt time.Time `json:"loaded_at"`
}

// List はロード済みドキュメントの一覧を返す。
// GET /d/
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs := h.store.List()
	summaries := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, documentSummary{
			ID:       doc.ID,
			Title:    doc.Metadata.Title,
			Tags:     doc.Metadata.Tags,
			LoadedAt: doc.LoadedAt,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Get はドキュメントのレンダリング済みHTMLを返す。
// GET /d/{uuid}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "INVALID_ID", "invalid document id")
		return
	}

	doc, ok := h.store.Get(id)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "document not found")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.HTML))
}
