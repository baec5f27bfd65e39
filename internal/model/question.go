package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NamespaceQuestion はQuestion IDの導出に使うUUIDv5名前空間。
// この値を変えると全Questionの同一性が失われるため固定とする。
var NamespaceQuestion = uuid.MustParse("0ef7b0a4-eb18-4108-b99e-cabe7b30b51b")

// DocumentRef はQuestion作成時に使うドキュメントへの位置非依存の参照。
type DocumentRef struct {
	ID uuid.UUID
}

// Question はドキュメント内の設問ブロックを表す。
// IDは (document_id, position) から決定的に導出されるため、
// 同じドキュメントの同じ位置は再取り込み後も常に同じIDになる。
type Question struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Position   int
	Tags       []string
}

// Equal はIDによる同一性判定を行う。
func (q Question) Equal(other Question) bool {
	return q.ID == other.ID
}

// QuestionID は (document_id, position) からQuestion IDを決定的に導出する。
// UUIDv5（SHA-1）をNamespaceQuestion名前空間で計算する。
func QuestionID(document DocumentRef, position int) uuid.UUID {
	return uuid.NewSHA1(NamespaceQuestion, fmt.Appendf(nil, "%s%d", document.ID, position))
}

// CommentableKind はコメント先の種別を表す。
type CommentableKind string

const (
	// CommentableQuestion はQuestionへのコメントを示す。
	CommentableQuestion CommentableKind = "question"
	// CommentableComment は別のCommentへの返信を示す。
	CommentableComment CommentableKind = "comment"
)

// Commentable はコメントの親（QuestionまたはComment）への参照。
// 再帰的な所有関係を避けるため、値の埋め込みではなく
// 種別とIDの組によるインダイレクトな参照として表現する。
type Commentable struct {
	Kind CommentableKind
	ID   uuid.UUID
}

// QuestionParent はQuestionを親とするCommentableを返す。
func QuestionParent(id uuid.UUID) Commentable {
	return Commentable{Kind: CommentableQuestion, ID: id}
}

// CommentParent はCommentを親とするCommentableを返す。
func CommentParent(id uuid.UUID) Commentable {
	return Commentable{Kind: CommentableComment, ID: id}
}

// Comment はQuestionまたは別のCommentに対するユーザーの発言を表す。
// Parentは共有参照であり、複数のCommentが同一の親を参照してよい。
type Comment struct {
	ID        uuid.UUID
	Parent    Commentable
	OwnerID   uuid.UUID
	Content   string
	CreatedAt time.Time
}

// Equal はIDによる同一性判定を行う。
func (c Comment) Equal(other Comment) bool {
	return c.ID == other.ID
}
