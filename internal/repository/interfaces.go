// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/model"
)

// Repository はドメイン操作の永続化ケイパビリティを抽象化する。
// 全操作はドメイン型のみを受け渡しし、ストレージエンジンの型を境界を
// 越えて漏らさない。これによりセッションミドルウェア、Auth Flow、
// 取り込みパイプラインをこの契約に対して1回だけ書き、インメモリ実装で
// テストできる。
type Repository interface {
	// RegisterUser は新規ユーザーを作成し、外部IdPのsubjectに紐付ける。
	// subjectが既に紐付いている場合は*model.UserAlreadyExistsErrorを返す。
	// これは回復可能なエラーであり、呼び出し側はGetUserFromAuthへ
	// フォールスルーすることが期待される。
	RegisterUser(ctx context.Context, auth model.Auth) (*model.User, error)

	// DeleteUser は指定ユーザーと関連データ（identity、コメント）を削除する。
	// 存在しない場合はmodel.ErrUserNotFoundを返す。
	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// GetUserFromAuth は既存の紐付けからユーザーを解決する。
	// 紐付けが存在しない場合はmodel.ErrUserNotFoundを返す。
	GetUserFromAuth(ctx context.Context, auth model.Auth) (*model.User, error)

	// GetUserFromID は指定IDのユーザーを取得する。
	// 存在しない場合はmodel.ErrUserNotFoundを返す。
	GetUserFromID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// GetAuthFromUser はユーザーに紐付くプロバイダー情報の逆引きを行う。
	// 存在しない場合はmodel.ErrAuthNotFoundを返す。
	GetAuthFromUser(ctx context.Context, user *model.User) (model.Auth, error)

	// AddQuestion は (document, position) から決定的IDを導出し、
	// そのIDをキーに冪等なUPSERTを行う。同一引数での再呼び出しは
	// タグの更新を除きno-opであり、重複はエラーにならない。
	// 再取り込み下では重複呼び出しが定常状態である。
	AddQuestion(ctx context.Context, document model.DocumentRef, position int, tags []string) (*model.Question, error)

	// GetQuestion は指定IDのQuestionを取得する。
	// 存在しない場合はmodel.ErrQuestionNotFoundを返す。
	GetQuestion(ctx context.Context, id uuid.UUID) (*model.Question, error)

	// AddComment は親（QuestionまたはComment）にコメントを追加する。
	AddComment(ctx context.Context, parent model.Commentable, owner *model.User, content string) (*model.Comment, error)

	// GetCommentList は親に付いたコメントを挿入順で返す。
	GetCommentList(ctx context.Context, parent model.Commentable) ([]model.Comment, error)
}
