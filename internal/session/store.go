// Package session はセッションIDの発行と、セッションに付随する
// レコードの永続化を提供する。
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/model"
)

// Store はセッションの永続化ケイパビリティを抽象化する。
//
// 不変条件: Registerが返したIDは直ちにIsValidで有効となり、
// Getはデフォルトのレコードを返す。未登録IDへのSetは契約違反であり、
// 実装は黙って成功させず明示的にエラーを返すこと
// （ミドルウェアのライフサイクル保証が破れていることを意味するため）。
type Store interface {
	// Register は空レコード付きの新しいセッションを発行して永続化する。
	Register(ctx context.Context) (uuid.UUID, error)

	// IsValid は指定IDのセッションが登録済みかを返す。
	IsValid(ctx context.Context, id uuid.UUID) (bool, error)

	// Get は指定IDのセッションレコードを取得する。
	// 未登録IDの場合はmodel.ErrSessionNotFoundを返す。
	// 登録済みだがレコード未設定の場合はゼロ値のレコードを返す
	// （匿名セッションは正当な状態であり、エラーではない）。
	Get(ctx context.Context, id uuid.UUID) (model.SessionRecord, error)

	// Set はレコードを全置換で保存する。部分更新はしない。
	Set(ctx context.Context, id uuid.UUID, record model.SessionRecord) error

	// Deregister はセッションを破棄する。
	Deregister(ctx context.Context, id uuid.UUID) error
}
