package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeaders_SetsExpectedHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/d/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "default-src 'self'") {
		t.Errorf("Content-Security-Policy = %q, want default-src 'self'", csp)
	}
}

func TestCORS_AllowsOnlyServedMethods(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000")(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/questions/x/comments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q, want configured origin", got)
	}

	methods := rec.Header().Get("Access-Control-Allow-Methods")
	if strings.Contains(methods, "PUT") || strings.Contains(methods, "PATCH") {
		t.Errorf("Allow-Methods = %q, must not advertise unserved methods", methods)
	}
	for _, m := range []string{"GET", "POST", "DELETE"} {
		if !strings.Contains(methods, m) {
			t.Errorf("Allow-Methods = %q, missing %s", methods, m)
		}
	}
}

func TestRecovery_ReturnsUnifiedErrorResponse(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/questions/x", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body: %v\nraw: %s", err, rec.Body.String())
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("error code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
}
