package model

import (
	"errors"
	"fmt"
)

// 検索系操作の未検出を表すセンチネルエラー。
// 呼び出し側がerrors.Isで分岐できるよう、ラップして返すこと。
var (
	// ErrUserNotFound はユーザーが存在しないことを示す。
	ErrUserNotFound = errors.New("user not found")

	// ErrSessionNotFound はセッションIDが未登録であることを示す。
	// 匿名だが登録済みのセッションとは区別される。
	ErrSessionNotFound = errors.New("session not found")

	// ErrQuestionNotFound はQuestionが存在しないことを示す。
	ErrQuestionNotFound = errors.New("question not found")

	// ErrAuthNotFound はユーザーに紐付くプロバイダー情報が存在しないことを示す。
	ErrAuthNotFound = errors.New("auth not found")
)

// UserAlreadyExistsError は外部IdPのsubjectが既に別ユーザーに
// 紐付いていることを示す。呼び出し側はGetUserFromAuthへの
// フォールスルーで回復することが期待される、回復可能なエラー。
// 元のAuthペイロードを保持して呼び出し側に返す。
type UserAlreadyExistsError struct {
	Auth Auth
}

// Error はerrorインターフェースを実装する。
func (e *UserAlreadyExistsError) Error() string {
	return fmt.Sprintf("user already exists for %s subject %s", e.Auth.Provider, e.Auth.SubjectID())
}

// InvalidCSRFError はOAuthコールバックのstateがセッションに
// 保存されたCSRFトークンと一致しないことを示す。
type InvalidCSRFError struct {
	Expected string
	Found    string
}

// Error はerrorインターフェースを実装する。
func (e *InvalidCSRFError) Error() string {
	return fmt.Sprintf("invalid CSRF state, found %q (expected %q)", e.Found, e.Expected)
}
