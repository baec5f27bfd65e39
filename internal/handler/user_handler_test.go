package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/qanda/internal/middleware"
	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/repository"
	"github.com/hitoshi/qanda/internal/session"
)

func TestWithdraw_DeletesUserAndClearsLogin(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store := session.NewMemoryStore()
	h := NewUserHandler(repo, store)

	auth := model.NewGoogleAuth(model.GoogleUser{Sub: "sub-withdraw"})
	user, err := repo.RegisterUser(context.Background(), auth)
	if err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}

	id, err := store.Register(context.Background())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.Set(context.Background(), id, model.SessionRecord{UserID: &user.ID}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(), id))
	w := httptest.NewRecorder()
	h.Withdraw(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}

	// ユーザーが削除されていること
	if _, err := repo.GetUserFromID(context.Background(), user.ID); !errors.Is(err, model.ErrUserNotFound) {
		t.Errorf("user lookup after withdraw = %v, want ErrUserNotFound", err)
	}
	// 同じ外部identityで再登録できること
	if _, err := repo.RegisterUser(context.Background(), auth); err != nil {
		t.Errorf("re-register after withdraw failed: %v", err)
	}

	// セッションは匿名として継続する
	staged, ok := middleware.StagedSessionRecord(req.Context())
	if !ok {
		t.Fatal("withdraw must stage the cleared record")
	}
	if staged.UserID != nil {
		t.Error("staged record must be anonymous after withdraw")
	}
}

func TestWithdraw_Anonymous_Returns401(t *testing.T) {
	repo := repository.NewMemoryRepository()
	store := session.NewMemoryStore()
	h := NewUserHandler(repo, store)

	req, _ := sessionRequest(t, store, http.MethodDelete, "/api/users/me")
	w := httptest.NewRecorder()
	h.Withdraw(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
