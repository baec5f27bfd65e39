package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/qanda/internal/middleware"
	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/repository"
	"github.com/hitoshi/qanda/internal/session"
)

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	repo  repository.Repository
	store session.Store
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(repo repository.Repository, store session.Store) *UserHandler {
	return &UserHandler{repo: repo, store: store}
}

// Withdraw は退会処理を行う。ユーザーと関連データを削除し、
// セッションからログイン状態を取り除く。セッション自体は
// 匿名セッションとして継続する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	record, err := sessionRecord(r, h.store)
	if err != nil {
		slog.Error("failed to load session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if record.UserID == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
		return
	}
	userID := *record.UserID

	if err := h.repo.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		slog.Error("failed to delete user",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	record.UserID = nil
	if err := middleware.StageSessionRecord(r.Context(), record); err != nil {
		slog.Error("failed to stage session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	slog.Info("user withdrawn", slog.String("user_id", userID.String()))
	w.WriteHeader(http.StatusNoContent)
}
