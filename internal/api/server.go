// Package api implements the HTTP front-end: chat, emotion and memory
// inspection, and health endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mikan1111/mafuyu/internal/agent"
	"github.com/mikan1111/mafuyu/internal/buildinfo"
	"github.com/mikan1111/mafuyu/internal/emotion"
	"github.com/mikan1111/mafuyu/internal/memory"
)

// writeJSON encodes v as JSON to w, logging failures at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		logger.Debug("failed to write error response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	logger  *slog.Logger
	session *agent.Session
	memory  memory.Store
	emotion emotion.Store
	server  *http.Server
}

// NewServer creates the API server. memory and emotion may be nil,
// disabling their inspection endpoints.
func NewServer(logger *slog.Logger, address string, port int, session *agent.Session, mem memory.Store, emo emotion.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		logger:  logger,
		session: session,
		memory:  mem,
		emotion: emo,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/initiate", s.handleInitiate)
	mux.HandleFunc("POST /v1/history/clear", s.handleHistoryClear)

	mux.HandleFunc("GET /v1/emotion/{user}", s.handleEmotion)
	mux.HandleFunc("GET /v1/memory/search", s.handleMemorySearch)
	mux.HandleFunc("GET /v1/memory/recent", s.handleMemoryRecent)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return mux
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // exchanges can take several model calls
	}

	s.logger.Info("starting API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// ChatResponse is the reply to chat and initiate calls. Warning is
// set when the exchange succeeded but a state update did not persist.
type ChatResponse struct {
	Response string `json:"response"`
	Warning  string `json:"warning,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required", s.logger)
		return
	}
	if req.User == "" {
		req.User = "default"
	}

	reply, err := s.session.Respond(r.Context(), req.User, req.Message)
	if err != nil && reply == "" {
		s.logger.Error("chat failed", "user", req.User, "error", err)
		writeError(w, http.StatusBadGateway, "completion backend failed", s.logger)
		return
	}
	resp := ChatResponse{Response: reply}
	if err != nil {
		s.logger.Warn("state update not persisted", "user", req.User, "error", err)
		resp.Warning = "state update not persisted"
	}
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.User == "" {
		req.User = "default"
	}

	reply, err := s.session.InitiateTalk(r.Context(), req.User)
	if err != nil && reply == "" {
		s.logger.Error("initiate failed", "user", req.User, "error", err)
		writeError(w, http.StatusBadGateway, "completion backend failed", s.logger)
		return
	}
	if reply == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	resp := ChatResponse{Response: reply}
	if err != nil {
		s.logger.Warn("state update not persisted", "user", req.User, "error", err)
		resp.Warning = "state update not persisted"
	}
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.User == "" {
		req.User = "default"
	}
	s.session.ClearHistory(req.User)
	writeJSON(w, map[string]string{"status": "cleared"}, s.logger)
}

func (s *Server) handleEmotion(w http.ResponseWriter, r *http.Request) {
	if s.emotion == nil {
		writeError(w, http.StatusNotFound, "emotion store not configured", s.logger)
		return
	}
	user := r.PathValue("user")
	state, err := s.emotion.Get(user)
	if err != nil {
		s.logger.Error("emotion lookup failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "emotion store failure", s.logger)
		return
	}
	writeJSON(w, state, s.logger)
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		writeError(w, http.StatusNotFound, "memory store not configured", s.logger)
		return
	}
	user := r.URL.Query().Get("user")
	query := r.URL.Query().Get("q")
	if user == "" || query == "" {
		writeError(w, http.StatusBadRequest, "user and q are required", s.logger)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, err := s.memory.Search(user, memory.Tokenize(query), limit)
	if err != nil {
		s.logger.Error("memory search failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "memory store failure", s.logger)
		return
	}
	writeJSON(w, map[string]any{"records": recs, "count": len(recs)}, s.logger)
}

func (s *Server) handleMemoryRecent(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		writeError(w, http.StatusNotFound, "memory store not configured", s.logger)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required", s.logger)
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))

	recs, err := s.memory.Recent(user, n)
	if err != nil {
		s.logger.Error("memory recent failed", "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "memory store failure", s.logger)
		return
	}
	writeJSON(w, map[string]any{"records": recs, "count": len(recs)}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"name":    "Mafuyu",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}
