package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	CommentRate     rate.Limit    // コメント投稿のレート（req/sec）
	CommentBurst    int           // コメント投稿のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/session、コメント投稿 10 req/min/session。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		CommentRate:     rate.Limit(10.0 / 60.0),
		CommentBurst:    10,
		CleanupInterval: 5 * time.Minute,
	}
}

// sessionLimiter はセッションごとのレートリミッターとアクセス時刻を保持する。
type sessionLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はセッションごとのレート制限を管理する。
// 認証前の訪問者にも適用できるよう、ユーザーIDではなく
// セッションIDをキーにする。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.Mutex
	generalLimiters map[string]*sessionLimiter

	commentMu       sync.Mutex
	commentLimiters map[string]*sessionLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*sessionLimiter),
		commentLimiters: make(map[string]*sessionLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// セッションミドルウェアの後に配置すること。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware("general", rl.config.GeneralRate, func(key string) *rate.Limiter {
		return getOrCreate(&rl.generalMu, rl.generalLimiters, key, rl.config.GeneralRate, rl.config.GeneralBurst)
	})
}

// CommentMiddleware はコメント投稿専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) CommentMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware("comment", rl.config.CommentRate, func(key string) *rate.Limiter {
		return getOrCreate(&rl.commentMu, rl.commentLimiters, key, rl.config.CommentRate, rl.config.CommentBurst)
	})
}

// middleware はセッションIDをキーとするレート制限ミドルウェアを構成する。
func (rl *RateLimiter) middleware(limitType string, r rate.Limit, lookup func(key string) *rate.Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sessionID, err := SessionIDFromContext(req.Context())
			if err != nil {
				// セッションミドルウェアより前に配置されている
				WriteInternalServerError(w)
				return
			}

			if !lookup(sessionID.String()).Allow() {
				writeRateLimitResponse(w, r)
				slog.Warn("rate limit exceeded",
					slog.String("session_id", sessionID.String()),
					slog.String("limit_type", limitType),
				)
				return
			}

			next.ServeHTTP(w, req)
		})
	}
}

// getOrCreate はキーに対応するリミッターを取得または作成する。
func getOrCreate(mu *sync.Mutex, limiters map[string]*sessionLimiter, key string, r rate.Limit, burst int) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	if sl, exists := limiters[key]; exists {
		sl.lastAccess = time.Now()
		return sl.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[key] = &sessionLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()
	return len(rl.generalLimiters)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.generalMu.Lock()
	for key, sl := range rl.generalLimiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(rl.generalLimiters, key)
		}
	}
	rl.generalMu.Unlock()

	rl.commentMu.Lock()
	for key, sl := range rl.commentLimiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(rl.commentLimiters, key)
		}
	}
	rl.commentMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "too many requests, please try again later")
}
