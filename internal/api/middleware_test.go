package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func preflight(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/generate-image", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	return req
}

func TestCORSPreflightAllowedOrigin(t *testing.T) {
	handler := newTestServer(&fakeRelay{}, stubDepth{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight(testOrigin))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "content-type" {
		t.Fatalf("unexpected allow-headers: %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("unexpected allow-credentials: %q", got)
	}
}

func TestCORSPreflightOtherOrigin(t *testing.T) {
	handler := newTestServer(&fakeRelay{}, stubDepth{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight("http://evil.example"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}

func TestCORSSimpleRequest(t *testing.T) {
	handler := newTestServer(&fakeRelay{}, stubDepth{})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Fatalf("unexpected allow-origin: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("simple request should still be served, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}
}
