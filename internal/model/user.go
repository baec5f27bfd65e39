// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// ProviderGoogle はGoogle OAuthプロバイダーの識別子。
const ProviderGoogle = "google"

// User はサービス利用ユーザーを表す。
// 同一性はIDのみで判定する。他のフィールドが異なっていても
// IDが等しければ同一エンティティとして扱う。
type User struct {
	ID        uuid.UUID
	Email     string
	Picture   string
	CreatedAt time.Time
}

// Equal はIDによる同一性判定を行う。
func (u User) Equal(other User) bool {
	return u.ID == other.ID
}

// GoogleUser はGoogleのOIDC userinfoエンドポイントが返すプロフィール情報を表す。
// スコープ openid, email, profile で取得できるフィールドに対応する。
type GoogleUser struct {
	Sub           string `json:"sub"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Auth は外部IdPの認証ペイロードを表すタグ付きユニオン。
// 現在はGoogleのみだが、将来的に他のIdPバリアントを追加可能な構造。
// ログイン試行ごとにAuth Flowが生成する一時的な値であり、
// 永続化されるのはリポジトリが管理するプロバイダー紐付けのみ。
type Auth struct {
	Provider string
	Google   *GoogleUser
}

// NewGoogleAuth はGoogleプロフィールからAuthを生成する。
func NewGoogleAuth(gu GoogleUser) Auth {
	return Auth{Provider: ProviderGoogle, Google: &gu}
}

// SubjectID はプロバイダー内で一意なユーザー識別子を返す。
// リポジトリはこの値に対して一意性制約を課す。
func (a Auth) SubjectID() string {
	if a.Google != nil {
		return a.Google.Sub
	}
	return ""
}
