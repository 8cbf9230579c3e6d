package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"emboss-relay/internal/generation"
)

const maxBodyBytes = 1 << 20

// ImageRelay turns a prompt into a generated image URL.
type ImageRelay interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DepthRenderer turns an image URL into a depth map data URL. It never fails.
type DepthRenderer interface {
	DepthMap(ctx context.Context, imageURL string) string
}

type Server struct {
	relay         ImageRelay
	depth         DepthRenderer
	allowedOrigin string
}

func NewServer(relay ImageRelay, depth DepthRenderer, allowedOrigin string) *Server {
	return &Server{relay: relay, depth: depth, allowedOrigin: allowedOrigin}
}

type generateImageRequest struct {
	Prompt *string `json:"prompt"`
}

type generateImageResponse struct {
	ImageURL string `json:"image_url"`
}

type generateDepthRequest struct {
	ImageURL *string `json:"image_url"`
}

type generateDepthResponse struct {
	DepthMapURL string `json:"depth_map_url"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Handler wires the routes and the middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)
	r.Use(withCORS(s.allowedOrigin))

	r.Get("/ping", s.handlePing)
	r.Post("/generate-image", s.handleGenerateImage)
	r.Post("/generate-depth", s.handleGenerateDepth)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "Not Found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "Method Not Allowed"})
	})
	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "pong"})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}
	if req.Prompt == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "prompt: field required"})
		return
	}
	if strings.TrimSpace(*req.Prompt) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "prompt: must not be empty"})
		return
	}

	log.Printf("generate image prompt=%q", trimRunes(*req.Prompt, 80))
	url, err := s.relay.Generate(r.Context(), *req.Prompt)
	if err != nil {
		var classified *generation.Error
		if !errors.As(err, &classified) {
			classified = &generation.Error{Status: http.StatusInternalServerError, Detail: "Failed to generate image: " + generation.Category(err)}
		}
		writeJSON(w, classified.Status, errorResponse{Detail: classified.Detail})
		return
	}

	writeJSON(w, http.StatusOK, generateImageResponse{ImageURL: url})
}

func (s *Server) handleGenerateDepth(w http.ResponseWriter, r *http.Request) {
	var req generateDepthRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: err.Error()})
		return
	}
	if req.ImageURL == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "image_url: field required"})
		return
	}

	log.Printf("generate depth url=%s", trimRunes(*req.ImageURL, 120))
	writeJSON(w, http.StatusOK, generateDepthResponse{DepthMapURL: s.depth.DepthMap(r.Context(), *req.ImageURL)})
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("body: field required")
		}
		return errors.New("body: invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func trimRunes(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + "..."
}
