package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"emboss-relay/internal/generation"
	"emboss-relay/internal/imaging"
)

type fakeRelay struct {
	mu     sync.Mutex
	prompt string
	url    string
	err    error
}

func (f *fakeRelay) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompt = prompt
	f.mu.Unlock()
	return f.url, f.err
}

type fakeGenerator struct {
	resp *generation.Response
	err  error
}

func (f fakeGenerator) Generate(ctx context.Context, params generation.Params) (*generation.Response, error) {
	return f.resp, f.err
}

type stubDepth struct {
	url string
}

func (s stubDepth) DepthMap(ctx context.Context, imageURL string) string {
	return s.url
}

const testOrigin = "http://localhost:5173"

func newTestServer(relay ImageRelay, depth DepthRenderer) http.Handler {
	return NewServer(relay, depth, testOrigin).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var payload map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestPing(t *testing.T) {
	rec := do(t, newTestServer(&fakeRelay{}, stubDepth{}), http.MethodGet, "/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := decodeJSON(t, rec)["message"]; got != "pong" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestGenerateImageSuccess(t *testing.T) {
	relay := &fakeRelay{url: "https://img/result.png"}
	rec := do(t, newTestServer(relay, stubDepth{}), http.MethodPost, "/generate-image", `{"prompt":"a red fox"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeJSON(t, rec)["image_url"]; got != "https://img/result.png" {
		t.Fatalf("unexpected image url: %s", got)
	}
	if relay.prompt != "a red fox" {
		t.Fatalf("unexpected prompt: %s", relay.prompt)
	}
}

func TestGenerateImageThroughRelay(t *testing.T) {
	cases := []struct {
		name   string
		gen    generation.Generator
		status int
		want   string
	}{
		{
			name:   "field shape",
			gen:    fakeGenerator{resp: &generation.Response{Data: []generation.ResultItem{generation.URLItem{URL: "https://img/a.png"}}}},
			status: http.StatusOK,
			want:   "https://img/a.png",
		},
		{
			name:   "mapping shape",
			gen:    fakeGenerator{resp: &generation.Response{Data: []generation.ResultItem{generation.MappingItem{"url": "https://img/b.png"}}}},
			status: http.StatusOK,
			want:   "https://img/b.png",
		},
		{
			name:   "empty data",
			gen:    fakeGenerator{resp: &generation.Response{}},
			status: http.StatusInternalServerError,
			want:   "Image generation response format error: empty data",
		},
		{
			name:   "unrecognised item",
			gen:    fakeGenerator{resp: &generation.Response{Data: []generation.ResultItem{generation.MappingItem{"b64_json": "AAAA"}}}},
			status: http.StatusInternalServerError,
			want:   "Image generation response format error: url not found",
		},
		{
			name:   "upstream failure",
			gen:    fakeGenerator{err: &generation.APIError{StatusCode: http.StatusUnauthorized, Body: "bad key"}},
			status: http.StatusInternalServerError,
			want:   "Failed to generate image: generation.APIError",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			relay := generation.NewRelay(tc.gen, generation.RelayOptions{Timeout: time.Second})
			rec := do(t, newTestServer(relay, stubDepth{}), http.MethodPost, "/generate-image", `{"prompt":"p"}`)
			if rec.Code != tc.status {
				t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
			}
			payload := decodeJSON(t, rec)
			got := payload["image_url"]
			if tc.status != http.StatusOK {
				got = payload["detail"]
			}
			if got != tc.want {
				t.Fatalf("unexpected payload: %v", payload)
			}
		})
	}
}

func TestGenerateImageTimeoutMapsTo504(t *testing.T) {
	relay := &fakeRelay{err: &generation.Error{Status: http.StatusGatewayTimeout, Detail: "Image generation timeout: DeadlineExceeded"}}
	rec := do(t, newTestServer(relay, stubDepth{}), http.MethodPost, "/generate-image", `{"prompt":"p"}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}

func TestGenerateImageUnclassifiedErrorHidesMessage(t *testing.T) {
	relay := &fakeRelay{err: errors.New("secret internals")}
	rec := do(t, newTestServer(relay, stubDepth{}), http.MethodPost, "/generate-image", `{"prompt":"p"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("error message leaked: %s", rec.Body.String())
	}
}

func TestGenerateImageValidation(t *testing.T) {
	handler := newTestServer(&fakeRelay{url: "x"}, stubDepth{})
	for _, body := range []string{``, `{`, `{}`, `{"prompt":"  "}`, `{"prompt":5}`} {
		rec := do(t, handler, http.MethodPost, "/generate-image", body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %q: expected 422, got %d", body, rec.Code)
		}
	}
}

func TestGenerateDepthAlwaysOK(t *testing.T) {
	handler := newTestServer(&fakeRelay{}, imaging.NewRenderer(imaging.RenderOptions{FetchTimeout: time.Second}))
	rec := do(t, handler, http.MethodPost, "/generate-depth", `{"image_url":"http://127.0.0.1:1/missing.png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if got := decodeJSON(t, rec)["depth_map_url"]; got != imaging.PlaceholderDataURL() {
		t.Fatalf("expected placeholder depth map")
	}
}

func TestGenerateDepthFromSource(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 24, 18))
	for i := range src.Pix {
		src.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer upstream.Close()

	handler := newTestServer(&fakeRelay{}, imaging.NewRenderer(imaging.RenderOptions{FetchTimeout: time.Second}))
	rec := do(t, handler, http.MethodPost, "/generate-depth", `{"image_url":"`+upstream.URL+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	payload, err := imaging.DecodeDataURL(decodeJSON(t, rec)["depth_map_url"])
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if _, ok := img.(*image.Gray); !ok {
		t.Fatalf("expected grayscale png, got %T", img)
	}
	if img.Bounds().Dx() != 24 || img.Bounds().Dy() != 18 {
		t.Fatalf("unexpected size: %v", img.Bounds())
	}
}

func TestGenerateDepthMissingField(t *testing.T) {
	rec := do(t, newTestServer(&fakeRelay{}, stubDepth{url: "x"}), http.MethodPost, "/generate-depth", `{}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	handler := newTestServer(&fakeRelay{}, stubDepth{})
	if rec := do(t, handler, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := do(t, handler, http.MethodGet, "/generate-image", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
