// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/metrics"
	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/session"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionIDContextKey     = contextKey("session_id")
	recordCarrierContextKey = contextKey("session_record_carrier")
)

// recordCarrier はハンドラーが更新したセッションレコードを
// レスポンス処理後の永続化まで運ぶ。Goのレスポンスには拡張領域が
// ないため、リクエストコンテキスト経由で受け渡す。
type recordCarrier struct {
	mu     sync.Mutex
	record *model.SessionRecord
}

func (c *recordCarrier) stage(record model.SessionRecord) {
	c.mu.Lock()
	c.record = &record
	c.mu.Unlock()
}

func (c *recordCarrier) staged() (model.SessionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return model.SessionRecord{}, false
	}
	return *c.record, true
}

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	// MaxAge はセッションCookieの有効期間。
	MaxAge time.Duration
	// Collector は新規セッション発行のメトリクス記録先。nilでもよい。
	Collector *metrics.Collector
}

// NewSessionMiddleware はすべてのリクエストに有効なセッションIDが
// 存在することを保証するライフサイクルゲートを返す。
//
// リクエストごとの遷移:
//  1. Cookieから既存のセッションIDを読み取り、有効ならそのまま採用する。
//  2. 無効または欠落していれば新しいセッションを発行し、
//     Secure/HttpOnly/Lax属性付きのCookieとして書き戻す。
//  3. ハンドラーはコンテキスト経由で常に有効なセッションIDを観測できる。
//  4. ハンドラーがStageSessionRecordで更新レコードを添付した場合のみ、
//     ハンドラー完了後にストアへ永続化する。
//
// ストア障害時はリクエストを500で中断する。ここだけはセッション
// サブシステムの失敗がリクエストに対して致命的になる（有効なセッション
// の保証を維持できないため）。
//
// 既知の挙動: Cookie未保存のクライアントが短時間に連続リクエストを
// 送ると、1回の訪問に対して複数の匿名セッションが発行されうる。
// データ破壊はないため許容する。
func NewSessionMiddleware(store session.Store, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolveSessionID(w, r, store, config)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			carrier := &recordCarrier{}
			ctx := context.WithValue(r.Context(), sessionIDContextKey, id)
			ctx = context.WithValue(ctx, recordCarrierContextKey, carrier)

			next.ServeHTTP(w, r.WithContext(ctx))

			// ハンドラーがレコードを添付した場合のみ永続化する。
			// タイムアウト済みリクエストではctxが取り消されており
			// Setが失敗するため、中途半端なレコードは残らない。
			if record, ok := carrier.staged(); ok {
				if err := store.Set(ctx, id, record); err != nil {
					slog.Error("failed to persist session record",
						slog.String("session_id", id.String()),
						slog.String("error", err.Error()),
					)
				}
			}
		})
	}
}

// resolveSessionID は有効なセッションIDを解決する。
// Cookieが有効ならストアへの書き込みなしでそのIDを返し、
// そうでなければ新規発行してCookieを書き戻す。
func resolveSessionID(w http.ResponseWriter, r *http.Request, store session.Store, config SessionConfig) (uuid.UUID, error) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if id, err := uuid.Parse(cookie.Value); err == nil {
			valid, err := store.IsValid(r.Context(), id)
			if err != nil {
				return uuid.Nil, fmt.Errorf("failed to validate session: %w", err)
			}
			if valid {
				return id, nil
			}
		}
	}

	// 無効・欠落したCookieは破棄し、新規セッションを発行する
	id, err := store.Register(r.Context())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to register session: %w", err)
	}
	config.Collector.RecordSessionCreated()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id.String(),
		Path:     "/",
		Domain:   config.CookieDomain,
		Expires:  time.Now().Add(config.MaxAge),
		MaxAge:   int(config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return id, nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionIDFromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(sessionIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("session ID not found in context")
	}
	return id, nil
}

// StageSessionRecord は更新済みレコードをレスポンス後の永続化対象として
// 添付する。同一リクエスト内で複数回呼ばれた場合は最後の値が勝つ。
func StageSessionRecord(ctx context.Context, record model.SessionRecord) error {
	carrier, ok := ctx.Value(recordCarrierContextKey).(*recordCarrier)
	if !ok {
		return fmt.Errorf("session record carrier not found in context")
	}
	carrier.stage(record)
	return nil
}

// ContextWithSession はセッションIDとレコード運搬用の領域を注入した
// コンテキストを返す。テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, id uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, sessionIDContextKey, id)
	return context.WithValue(ctx, recordCarrierContextKey, &recordCarrier{})
}

// StagedSessionRecord はコンテキストに添付済みのレコードを返す。テスト用。
func StagedSessionRecord(ctx context.Context) (model.SessionRecord, bool) {
	carrier, ok := ctx.Value(recordCarrierContextKey).(*recordCarrier)
	if !ok {
		return model.SessionRecord{}, false
	}
	return carrier.staged()
}
