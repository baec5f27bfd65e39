// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentSanitizerService は訪問者が投稿するコメント本文をサニタイズし、
// XSS攻撃などのセキュリティリスクから閲覧者を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizerService はコメント本文のサニタイズ機能のインターフェースを定義する。
// コメントの保存前に使用される。
type CommentSanitizerService interface {
	// Sanitize はコメント本文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, blockquote, pre, code, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 前後の空白は取り除かれる。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// commentSanitizer はCommentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, a, blockquote, pre, code, strong, em
//   - 禁止タグ: script, iframe, style, img および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noreferrer noopener" を自動付与
//
// コメントは第三者の訪問者が書くため、記事本文より厳しく画像も許可しない。
func NewCommentSanitizer() *commentSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される。
	p.AllowElements(
		"p", "br",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &commentSanitizer{
		policy: p,
	}
}

// Sanitize はコメント本文をサニタイズして安全なHTMLを返す。
func (s *commentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
