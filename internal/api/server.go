// Package api exposes the daemon's local HTTP surface: health checks, the
// persisted chat read model, and the signal ingress that feeds the capture
// scheduler.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chatlogd/internal/store"
	logx "chatlogd/pkg/logx"
)

// Admitter resolves a raw signal reference and offers it to the capture
// scheduler. It reports whether the signal was admitted.
type Admitter interface {
	AdmitSignal(ctx context.Context, ref string, code int) (bool, error)
}

type Config struct {
	Addr        string
	HealthPaths []string
}

type Server struct {
	router *chi.Mux
	http   *http.Server
	store  *store.Store
	admit  Admitter
	log    logx.Logger
}

func NewServer(cfg Config, st *store.Store, admit Admitter, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8750"
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		store:  st,
		admit:  admit,
		log:    log,
	}
	s.http = &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Health endpoints: the fixed default plus any configured aliases
	// (load balancers and uptime monitors tend to have opinions).
	health := map[string]struct{}{"/api/webhook/health": {}}
	for _, p := range cfg.HealthPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		health[p] = struct{}{}
	}
	for p := range health {
		router.Get(p, s.health)
	}

	router.Get("/api/chats", s.chats)
	router.Get("/api/chats/{title}/messages", s.messages)
	router.Post("/api/signals", s.signal)

	return s
}

// Handler exposes the route tree (used by tests and embedding callers).
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving and returns once the listener stops. A server closed
// by Shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("api listening", logx.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) chats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.Chats(r.Context())
	if err != nil {
		s.log.Error("chat list query failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if chats == nil {
		chats = []store.ChatInfo{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) messages(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	msgs, err := s.store.MessagesByTitle(r.Context(), title)
	if errors.Is(err, store.ErrChatNotFound) {
		writeError(w, http.StatusNotFound, "unknown chat: "+title)
		return
	}
	if err != nil {
		s.log.Error("message query failed", logx.String("chat", title), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if msgs == nil {
		msgs = []store.MessageRecord{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type signalRequest struct {
	TargetID string `json:"target_id"`
	Code     int    `json:"code,omitempty"`
}

type signalResponse struct {
	Admitted bool `json:"admitted"`
}

func (s *Server) signal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.TargetID) == "" {
		writeError(w, http.StatusBadRequest, "target_id is required")
		return
	}

	admitted, err := s.admit.AdmitSignal(r.Context(), req.TargetID, req.Code)
	if err != nil {
		// Resolve failures are expected noise (windows come and go); the
		// signal is simply dropped.
		s.log.Debug("signal dropped", logx.String("ref", req.TargetID), logx.Err(err))
	}
	writeJSON(w, http.StatusAccepted, signalResponse{Admitted: admitted})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
