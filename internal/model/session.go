package model

import "github.com/google/uuid"

// SessionRecord はセッションに付随するミュータブルなレコード。
// CSRFStateはログインハンドシェイク中のみ値を持つ。
// UserIDが未設定のセッションは正当な匿名セッションであり、エラー状態ではない。
type SessionRecord struct {
	CSRFState *string    `json:"csrf_state,omitempty"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
}

// Authenticated は認証済みユーザーに紐付いているかを返す。
func (r SessionRecord) Authenticated() bool {
	return r.UserID != nil
}
