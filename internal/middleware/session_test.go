package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/qanda/internal/model"
	"github.com/hitoshi/qanda/internal/session"
)

func testConfig() SessionConfig {
	return SessionConfig{
		CookieSecure: true,
		MaxAge:       5 * 24 * time.Hour,
	}
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSessionMiddleware_NoCookie_MintsSession(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(store, testConfig())

	var capturedID uuid.UUID
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := SessionIDFromContext(r.Context())
		if err != nil {
			t.Errorf("handler must observe a resolved session: %v", err)
		}
		capturedID = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/d/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	cookie := sessionCookie(resp)
	if cookie == nil {
		t.Fatal("response must carry a session cookie")
	}
	if cookie.Value != capturedID.String() {
		t.Errorf("cookie value = %q, want session id %s", cookie.Value, capturedID)
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie attributes = HttpOnly:%v Secure:%v SameSite:%v, want true/true/Lax",
			cookie.HttpOnly, cookie.Secure, cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Errorf("cookie path = %q, want /", cookie.Path)
	}
	if cookie.MaxAge != int((5 * 24 * time.Hour).Seconds()) {
		t.Errorf("cookie max-age = %d, want 5 days in seconds", cookie.MaxAge)
	}

	valid, _ := store.IsValid(req.Context(), capturedID)
	if !valid {
		t.Error("minted session must be valid in the store")
	}
}

func TestSessionMiddleware_ValidCookie_DoesNotMintAnother(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(store, testConfig())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 1回目: セッションが発行される
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/d/", nil))
	cookie := sessionCookie(first.Result())
	if cookie == nil {
		t.Fatal("first response must set a cookie")
	}

	// 2回目: 同じCookieを送ると再発行されない
	req := httptest.NewRequest(http.MethodGet, "/d/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)

	if c := sessionCookie(second.Result()); c != nil {
		t.Errorf("second request must not mint another session, got cookie %q", c.Value)
	}
	if store.Count() != 1 {
		t.Errorf("session count = %d, want 1", store.Count())
	}
}

func TestSessionMiddleware_StaleCookie_Replaced(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(store, testConfig())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/d/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: uuid.New().String()})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	cookie := sessionCookie(w.Result())
	if cookie == nil {
		t.Fatal("stale cookie must be replaced with a fresh session")
	}
}

func TestSessionMiddleware_StagedRecord_PersistedAfterHandler(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(store, testConfig())

	userID := uuid.New()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := StageSessionRecord(r.Context(), model.SessionRecord{UserID: &userID}); err != nil {
			t.Errorf("StageSessionRecord failed: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))

	cookie := sessionCookie(w.Result())
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	id := uuid.MustParse(cookie.Value)

	record, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.UserID == nil || *record.UserID != userID {
		t.Errorf("persisted record user_id = %v, want %s", record.UserID, userID)
	}
}

func TestSessionMiddleware_NoStagedRecord_StoreUntouched(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(store, testConfig())

	id, _ := store.Register(context.Background())
	csrf := "pending"
	if err := store.Set(context.Background(), id, model.SessionRecord{CSRFState: &csrf}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/d/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id.String()})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	record, _ := store.Get(context.Background(), id)
	if record.CSRFState == nil || *record.CSRFState != "pending" {
		t.Errorf("record must be untouched when handler stages nothing, got %+v", record)
	}
}
