package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/qanda/internal/middleware"
	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/repository"
	"github.com/hitoshi/qanda/internal/security"
	"github.com/hitoshi/qanda/internal/session"
)

// maxCommentLength はサニタイズ後のコメント本文の上限文字数。
const maxCommentLength = 4000

// QuestionHandler は設問とコメントのHTTPハンドラー。
type QuestionHandler struct {
	repo      repository.Repository
	store     session.Store
	sanitizer security.CommentSanitizerService
}

// NewQuestionHandler はQuestionHandlerを生成する。
func NewQuestionHandler(repo repository.Repository, store session.Store, sanitizer security.CommentSanitizerService) *QuestionHandler {
	return &QuestionHandler{
		repo:      repo,
		store:     store,
		sanitizer: sanitizer,
	}
}

// questionResponse は設問のJSON表現。
type questionResponse struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Position   int       `json:"position"`
	Tags       []string  `json:"tags"`
}

// commentResponse はコメントのJSON表現。
type commentResponse struct {
	ID         uuid.UUID             `json:"id"`
	ParentKind model.CommentableKind `json:"parent_kind"`
	ParentID   uuid.UUID             `json:"parent_id"`
	OwnerID    uuid.UUID             `json:"owner_id"`
	Content    string                `json:"content"`
	CreatedAt  time.Time             `json:"created_at"`
}

func toCommentResponse(c model.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		ParentKind: c.Parent.Kind,
		ParentID:   c.Parent.ID,
		OwnerID:    c.OwnerID,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
	}
}

// GetQuestion は設問を返す。
// GET /api/questions/{id}
func (h *QuestionHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "INVALID_ID", "invalid question id")
		return
	}

	question, err := h.repo.GetQuestion(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrQuestionNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "question not found")
			return
		}
		slog.Error("failed to get question", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, questionResponse{
		ID:         question.ID,
		DocumentID: question.DocumentID,
		Position:   question.Position,
		Tags:       question.Tags,
	})
}

// ListQuestionComments は設問に付いたコメントを挿入順で返す。
// GET /api/questions/{id}/comments
func (h *QuestionHandler) ListQuestionComments(w http.ResponseWriter, r *http.Request) {
	h.listComments(w, r, model.CommentableQuestion)
}

// CreateQuestionComment は設問にコメントを追加する。要ログイン。
// POST /api/questions/{id}/comments
func (h *QuestionHandler) CreateQuestionComment(w http.ResponseWriter, r *http.Request) {
	h.createComment(w, r, model.CommentableQuestion)
}

// ListCommentReplies はコメントへの返信を挿入順で返す。
// GET /api/comments/{id}/comments
func (h *QuestionHandler) ListCommentReplies(w http.ResponseWriter, r *http.Request) {
	h.listComments(w, r, model.CommentableComment)
}

// CreateCommentReply はコメントに返信を追加する。要ログイン。
// POST /api/comments/{id}/comments
func (h *QuestionHandler) CreateCommentReply(w http.ResponseWriter, r *http.Request) {
	h.createComment(w, r, model.CommentableComment)
}

// parentFromRequest はURLパラメーターからCommentable参照を組み立てる。
// 設問を親にする場合は実在確認も行う。
func (h *QuestionHandler) parentFromRequest(r *http.Request, kind model.CommentableKind) (model.Commentable, int, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return model.Commentable{}, http.StatusBadRequest, errors.New("invalid parent id")
	}

	if kind == model.CommentableQuestion {
		if _, err := h.repo.GetQuestion(r.Context(), id); err != nil {
			if errors.Is(err, model.ErrQuestionNotFound) {
				return model.Commentable{}, http.StatusNotFound, errors.New("question not found")
			}
			return model.Commentable{}, http.StatusInternalServerError, err
		}
		return model.QuestionParent(id), 0, nil
	}
	return model.CommentParent(id), 0, nil
}

func (h *QuestionHandler) listComments(w http.ResponseWriter, r *http.Request, kind model.CommentableKind) {
	parent, status, err := h.parentFromRequest(r, kind)
	if err != nil {
		if status == http.StatusInternalServerError {
			slog.Error("failed to resolve comment parent", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
		middleware.WriteErrorResponse(w, status, "INVALID_PARENT", err.Error())
		return
	}

	comments, err := h.repo.GetCommentList(r.Context(), parent)
	if err != nil {
		slog.Error("failed to list comments", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	responses := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		responses = append(responses, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, responses)
}

// createCommentRequest はコメント作成リクエストのボディ。
type createCommentRequest struct {
	Content string `json:"content"`
}

func (h *QuestionHandler) createComment(w http.ResponseWriter, r *http.Request, kind model.CommentableKind) {
	// 匿名セッションは有効だが、コメント投稿にはログインが必要
	owner, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	parent, status, err := h.parentFromRequest(r, kind)
	if err != nil {
		if status == http.StatusInternalServerError {
			slog.Error("failed to resolve comment parent", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
		middleware.WriteErrorResponse(w, status, "INVALID_PARENT", err.Error())
		return
	}

	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	sanitized := h.sanitizer.Sanitize(req.Content)
	if sanitized == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "EMPTY_CONTENT", "comment content is empty")
		return
	}
	if len(sanitized) > maxCommentLength {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "CONTENT_TOO_LONG", "comment content is too long")
		return
	}

	comment, err := h.repo.AddComment(r.Context(), parent, owner, sanitized)
	if err != nil {
		slog.Error("failed to add comment", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, toCommentResponse(*comment))
}

// requireUser はログイン済みユーザーを解決する。未ログインなら401を書き込む。
func (h *QuestionHandler) requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	record, err := sessionRecord(r, h.store)
	if err != nil {
		slog.Error("failed to load session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	if record.UserID == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
		return nil, false
	}

	user, err := h.repo.GetUserFromID(r.Context(), *record.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			// 退会済みユーザーのセッションが残っているケース
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
			return nil, false
		}
		slog.Error("failed to resolve user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return user, true
}
