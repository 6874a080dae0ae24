// Package server exposes the tutor over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/ledger/internal/tutor"
)

// maxBodyBytes bounds submission request bodies.
const maxBodyBytes = 1 << 20

// readyTimeout bounds each dependency check behind /readyz.
const readyTimeout = 2 * time.Second

// Checker is a dependency that can report its health.
type Checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// Server routes requests to the tutor service.
type Server struct {
	svc      *tutor.Service
	checkers []Checker
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithCheckers adds dependencies to /readyz.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, checkers...)
	}
}

// WithAllowedOrigins sets the host patterns allowed to open a WebSocket
// from another origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a server for svc.
func New(svc *tutor.Service, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/node", s.handleNode)
	mux.HandleFunc("GET /api/sessions/{id}/map", s.handleMap)
	mux.HandleFunc("POST /api/sessions/{id}/submit", s.handleSubmit)
	mux.HandleFunc("GET /api/sessions/{id}/export.xlsx", s.handleExport)
	mux.HandleFunc("GET /api/sessions/{id}/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for _, c := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "dependency", c.Name(), "error", err)
			failed[c.Name()] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error string     `json:"error"`
	Code  tutor.Code `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps service errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	code := tutor.GetCode(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func statusFor(code tutor.Code) int {
	switch code {
	case tutor.CodeNotFound:
		return http.StatusNotFound
	case tutor.CodeCourseComplete:
		return http.StatusConflict
	case tutor.CodeRateLimited:
		return http.StatusTooManyRequests
	case tutor.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
