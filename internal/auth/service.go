// Package auth はGoogle OAuthによるログインフローを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.GoogleUser, error)
}

// Service はログイン・ログアウトのビジネスロジックを提供する。
// セッションレコードは呼び出し側（ハンドラー）が読み書きし、
// Serviceは更新後のレコードを返すだけで永続化には関与しない。
type Service struct {
	oauth OAuthProvider
	repo  repository.Repository
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, repo repository.Repository) *Service {
	return &Service{oauth: oauth, repo: repo}
}

// BeginLogin はログインフローを開始する。
// 新しいCSRF stateを生成してレコードに記録し、認証URLを返す。
// 進行中のフローが既にあっても新しいstateで上書きする。
func (s *Service) BeginLogin(record model.SessionRecord) (string, model.SessionRecord, error) {
	state, err := generateState()
	if err != nil {
		return "", record, fmt.Errorf("failed to generate csrf state: %w", err)
	}

	record.CSRFState = &state
	return s.oauth.GetLoginURL(state), record, nil
}

// CompleteLogin はOAuthコールバックを処理する。
//
// コールバックのstateがレコードに記録済みのCSRF stateと一致しない場合、
// リポジトリへの書き込みを一切行わずInvalidCSRFErrorを返す。
//
// 検証に成功したらプロフィールを取得してユーザー登録を試み、
// 既に登録済み（同一subで過去にログイン済み）なら既存ユーザーを引き当てる。
// 返却レコードはCSRF stateがクリアされ、ユーザーIDが設定された状態になる。
func (s *Service) CompleteLogin(ctx context.Context, record model.SessionRecord, code, state string) (*model.User, model.SessionRecord, error) {
	expected := ""
	if record.CSRFState != nil {
		expected = *record.CSRFState
	}
	if expected == "" || expected != state {
		return nil, record, &model.InvalidCSRFError{Expected: expected, Found: state}
	}

	googleUser, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, record, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.resolveUser(ctx, model.NewGoogleAuth(*googleUser))
	if err != nil {
		return nil, record, err
	}

	record.CSRFState = nil
	record.UserID = &user.ID
	return user, record, nil
}

// resolveUser は認証ペイロードからユーザーを登録または引き当てる。
// 登録が重複で失敗した場合は既存ユーザーの取得にフォールバックする。
func (s *Service) resolveUser(ctx context.Context, a model.Auth) (*model.User, error) {
	user, err := s.repo.RegisterUser(ctx, a)
	if err == nil {
		slog.Info("new user registered",
			slog.String("user_id", user.ID.String()),
			slog.String("provider", a.Provider),
		)
		return user, nil
	}

	var alreadyExists *model.UserAlreadyExistsError
	if !errors.As(err, &alreadyExists) {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	user, err = s.repo.GetUserFromAuth(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing user: %w", err)
	}

	slog.Info("existing user logged in",
		slog.String("user_id", user.ID.String()),
		slog.String("provider", a.Provider),
	)
	return user, nil
}

// Logout はレコードからログイン状態を取り除く。
// セッション自体は破棄せず、匿名セッションとして継続する。
func (s *Service) Logout(record model.SessionRecord) model.SessionRecord {
	record.UserID = nil
	return record
}

// CurrentUser はレコードに紐付くユーザーを取得する。
// 未ログインの場合はmodel.ErrUserNotFoundを返す。
func (s *Service) CurrentUser(ctx context.Context, record model.SessionRecord) (*model.User, error) {
	if record.UserID == nil {
		return nil, model.ErrUserNotFound
	}
	return s.repo.GetUserFromID(ctx, *record.UserID)
}

// generateState は暗号的に安全なCSRF stateを生成する。
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
