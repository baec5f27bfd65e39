// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/qanda/internal/middleware"
	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/session"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	BeginLogin(record model.SessionRecord) (string, model.SessionRecord, error)
	CompleteLogin(ctx context.Context, record model.SessionRecord, code, state string) (*model.User, model.SessionRecord, error)
	Logout(record model.SessionRecord) model.SessionRecord
	CurrentUser(ctx context.Context, record model.SessionRecord) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// BaseURL は認証フロー完了後のリダイレクト先。
	BaseURL string
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
// セッションレコードの読み取りはストアから行い、更新は
// セッションミドルウェアの永続化ステップに委ねる。
type AuthHandler struct {
	service AuthServiceInterface
	store   session.Store
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, store session.Store, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		store:   store,
		config:  config,
	}
}

// sessionRecord はリクエストのセッションレコードを取得する。
// セッションミドルウェアの保証により、通過済みリクエストでは
// 必ず有効なセッションIDが存在する。
func sessionRecord(r *http.Request, store session.Store) (model.SessionRecord, error) {
	id, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		return model.SessionRecord{}, err
	}
	return store.Get(r.Context(), id)
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	record, err := sessionRecord(r, h.store)
	if err != nil {
		slog.Error("failed to load session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	url, updated, err := h.service.BeginLogin(record)
	if err != nil {
		slog.Error("failed to begin login", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if err := middleware.StageSessionRecord(r.Context(), updated); err != nil {
		slog.Error("failed to stage session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "MISSING_CODE", "missing authorization code")
		return
	}

	record, err := sessionRecord(r, h.store)
	if err != nil {
		slog.Error("failed to load session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	user, updated, err := h.service.CompleteLogin(r.Context(), record, code, state)
	if err != nil {
		var csrfErr *model.InvalidCSRFError
		if errors.As(err, &csrfErr) {
			slog.Warn("oauth state mismatch", slog.String("found", csrfErr.Found))
			middleware.WriteErrorResponse(w, http.StatusBadRequest, "INVALID_STATE", "invalid state parameter")
			return
		}
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "AUTH_FAILED", "authentication failed")
		return
	}

	if err := middleware.StageSessionRecord(r.Context(), updated); err != nil {
		slog.Error("failed to stage session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	slog.Info("login completed", slog.String("user_id", user.ID.String()))
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はログイン状態を解除する。セッション自体は匿名として継続する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	record, err := sessionRecord(r, h.store)
	if err != nil {
		slog.Error("failed to load session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if err := middleware.StageSessionRecord(r.Context(), h.service.Logout(record)); err != nil {
		slog.Error("failed to stage session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	record, err := sessionRecord(r, h.store)
	if err != nil {
		slog.Error("failed to load session record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	user, err := h.service.CurrentUser(r.Context(), record)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "not logged in")
			return
		}
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      user.ID,
		"email":   user.Email,
		"picture": user.Picture,
	})
}
