package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	return rl
}

func sessionRequest(t *testing.T, sessionID uuid.UUID) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/questions/x", nil)
	return req.WithContext(ContextWithSession(req.Context(), sessionID))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_General_AllowsWithinBurst(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralBurst = 3
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())
	sessionID := uuid.New()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, sessionRequest(t, sessionID))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_General_RejectsOverBurst(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(0.001) // 補充をほぼ止める
	config.GeneralBurst = 2
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())
	sessionID := uuid.New()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, sessionRequest(t, sessionID))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, sessionRequest(t, sessionID))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429レスポンスにRetry-Afterヘッダーがない")
	}
}

func TestRateLimiter_SeparateSessionsHaveSeparateBudgets(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.GeneralRate = rate.Limit(0.001)
	config.GeneralBurst = 1
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())
	first := uuid.New()
	second := uuid.New()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, sessionRequest(t, first))
	if rec.Code != http.StatusOK {
		t.Fatalf("first session: status = %d, want %d", rec.Code, http.StatusOK)
	}

	// 1つ目のセッションは枯渇
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, sessionRequest(t, first))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first session second request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// 2つ目のセッションは独立した予算を持つ
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, sessionRequest(t, second))
	if rec.Code != http.StatusOK {
		t.Fatalf("second session: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimiter_CommentBudgetIndependentOfGeneral(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.CommentRate = rate.Limit(0.001)
	config.CommentBurst = 1
	rl := newTestRateLimiter(t, config)

	general := rl.GeneralMiddleware()(okHandler())
	comment := rl.CommentMiddleware()(okHandler())
	sessionID := uuid.New()

	// コメント予算を使い切る
	rec := httptest.NewRecorder()
	comment.ServeHTTP(rec, sessionRequest(t, sessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("comment: status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec = httptest.NewRecorder()
	comment.ServeHTTP(rec, sessionRequest(t, sessionID))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("comment over budget: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// API全般の予算は影響を受けない
	rec = httptest.NewRecorder()
	general.ServeHTTP(rec, sessionRequest(t, sessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("general after comment exhaustion: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimiter_MissingSession_Returns500(t *testing.T) {
	rl := newTestRateLimiter(t, DefaultRateLimiterConfig())
	handler := rl.GeneralMiddleware()(okHandler())

	// セッションミドルウェアを通っていないリクエスト
	req := httptest.NewRequest(http.MethodGet, "/api/questions/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	config := DefaultRateLimiterConfig()
	config.CleanupInterval = 10 * time.Millisecond
	rl := newTestRateLimiter(t, config)

	handler := rl.GeneralMiddleware()(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, sessionRequest(t, uuid.New()))

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, want 1", rl.GeneralLimiterCount())
	}

	// 最終アクセスからCleanupInterval*2経過後のクリーンアップで削除される
	deadline := time.After(2 * time.Second)
	for rl.GeneralLimiterCount() != 0 {
		select {
		case <-deadline:
			t.Fatalf("idle entry was not cleaned up (count=%d)", rl.GeneralLimiterCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
