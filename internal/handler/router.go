package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/qanda/internal/content"
	"github.com/hitoshi/qanda/internal/metrics"
	"github.com/hitoshi/qanda/internal/middleware"
	"github.com/hitoshi/qanda/internal/repository"
	"github.com/hitoshi/qanda/internal/security"
	"github.com/hitoshi/qanda/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger    *slog.Logger
	Collector *metrics.Collector

	// ミドルウェア依存
	SessionStore      session.Store
	SessionConfig     middleware.SessionConfig
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	RequestTimeout    time.Duration

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	Repo          repository.Repository
	DocumentStore *content.Store
	Sanitizer     security.CommentSanitizerService

	// メトリクス公開
	MetricsRegistry *prometheus.Registry
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序（外側から）:
//
//	Recovery → SecurityHeaders → CORS → Timeout → Session → Logging → RateLimit(General)
//
// Timeoutはセッションミドルウェアの外側に置く。タイムアウトした
// リクエストではコンテキストが取り消され、添付済みセッションレコードの
// 永続化が失敗するため、中途半端なレコード更新は残らない。
// /healthと/metricsはセッションチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionStore, deps.AuthConfig)
	docHandler := NewDocumentHandler(deps.DocumentStore)
	questionHandler := NewQuestionHandler(deps.Repo, deps.SessionStore, deps.Sanitizer)
	userHandler := NewUserHandler(deps.Repo, deps.SessionStore)

	// --- セッション不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsRegistry != nil {
		r.Handle("/metrics", metrics.SetupMetricsRoute(deps.MetricsRegistry))
	}

	// --- セッションゲート配下のルート ---
	r.Group(func(r chi.Router) {
		if deps.RequestTimeout > 0 {
			r.Use(chimiddleware.Timeout(deps.RequestTimeout))
		}
		r.Use(middleware.NewSessionMiddleware(deps.SessionStore, deps.SessionConfig))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// 認証フロー
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// ドキュメント配信
		r.Route("/d", func(r chi.Router) {
			r.Get("/", docHandler.List)
			r.Get("/{uuid}", docHandler.Get)
		})

		// 設問とコメント
		r.Route("/api/questions/{id}", func(r chi.Router) {
			r.Get("/", questionHandler.GetQuestion)
			r.Get("/comments", questionHandler.ListQuestionComments)
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.CommentMiddleware()).Post("/comments", questionHandler.CreateQuestionComment)
			} else {
				r.Post("/comments", questionHandler.CreateQuestionComment)
			}
		})
		r.Route("/api/comments/{id}", func(r chi.Router) {
			r.Get("/comments", questionHandler.ListCommentReplies)
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.CommentMiddleware()).Post("/comments", questionHandler.CreateCommentReply)
			} else {
				r.Post("/comments", questionHandler.CreateCommentReply)
			}
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
