// Package channel exposes the agent service over transport surfaces.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
	"agentgw/internal/infra/middleware"
	"agentgw/internal/usecase"
)

// DocumentStore is the write side of the knowledge base as the API needs
// it. The search side reaches agents through domain.RAGSearcher instead.
type DocumentStore interface {
	Ingest(ctx context.Context, text, source string, skills, tags []string) (int, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	DeleteBySource(ctx context.Context, source string) error
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	svc       *usecase.Service
	planner   *usecase.Planner
	docs      DocumentStore
	history   domain.HistoryStore
	server    *http.Server
	listener  net.Listener
	boundAddr string
	logger    *slog.Logger
}

// NewHTTPServer binds the listener immediately so the chosen port is known
// before Start.
func NewHTTPServer(cfg config.ServerConfig, svc *usecase.Service, planner *usecase.Planner, docs DocumentStore, history domain.HistoryStore, logger *slog.Logger) (*HTTPServer, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	s := &HTTPServer{
		svc:       svc,
		planner:   planner,
		docs:      docs,
		history:   history,
		listener:  ln,
		boundAddr: ln.Addr().String(),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/route", s.handleRoute)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("DELETE /api/documents", s.handleDeleteDocuments)
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)
	mux.HandleFunc("GET /api/skills", s.handleSkills)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleSessionMessages)

	handler := middleware.SecurityHeaders(
		middleware.APIKeyAuth(cfg.APIKey)(
			middleware.RateLimit(context.Background(), cfg.RateLimitPerMin, cfg.RateLimitBurst)(mux),
		),
	)

	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Chat responses stream for as long as the agent loop runs, so no
		// write timeout on the server itself.
	}
	return s, nil
}

// Addr reports the bound listen address.
func (s *HTTPServer) Addr() string { return s.boundAddr }

// Start serves until the listener closes. It blocks.
func (s *HTTPServer) Start() error {
	s.logger.Info("http api listening", "addr", s.boundAddr)
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Skill     string `json:"skill"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// handleChat streams the agent's response as server-sent events. The
// session event arrives first so clients can resume, chunk events carry
// visible text, and exactly one done or error event closes the stream.
func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Skill == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "skill and message are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	agent, err := s.svc.CreateAgent(r.Context(), req.Skill, usecase.AgentOptions{
		SessionID: req.SessionID,
		Model:     req.Model,
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendEvent(w, flusher, "session", map[string]string{"session_id": agent.Session().ID})

	out, errCh := agent.Run(r.Context(), req.Message)
	for chunk := range out {
		sendEvent(w, flusher, "chunk", map[string]string{"content": chunk})
	}
	if err := <-errCh; err != nil {
		s.logger.Error("chat turn failed", "skill", req.Skill, "error", err)
		sendEvent(w, flusher, "error", map[string]string{"message": err.Error()})
		return
	}
	sendEvent(w, flusher, "done", map[string]string{})
}

func (s *HTTPServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "routing not configured")
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	decision, err := s.planner.Route(r.Context(), req.Message)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}
	var req struct {
		Text   string   `json:"text"`
		Source string   `json:"source"`
		Skills []string `json:"skills,omitempty"`
		Tags   []string `json:"tags,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" || req.Source == "" {
		writeError(w, http.StatusBadRequest, "text and source are required")
		return
	}
	chunks, err := s.docs.Ingest(r.Context(), req.Text, req.Source, req.Skills, req.Tags)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": req.Source, "chunks": chunks})
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}
	docs, err := s.docs.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *HTTPServer) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base not configured")
		return
	}
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		writeError(w, http.StatusBadRequest, "source query parameter is required")
		return
	}
	if err := s.docs.DeleteBySource(r.Context(), source); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": source})
}

func (s *HTTPServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := s.svc.SaveFeedback(r.Context(), req.SessionID, req.Rating, req.Comment); err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *HTTPServer) handleSkills(w http.ResponseWriter, r *http.Request) {
	type skillInfo struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tools       []string `json:"tools,omitempty"`
		Tags        []string `json:"tags,omitempty"`
	}
	skills := s.svc.Skills()
	infos := make([]skillInfo, len(skills))
	for i, sk := range skills {
		infos[i] = skillInfo{Name: sk.Name, Description: sk.Description, Tools: sk.Tools, Tags: sk.Tags}
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": infos})
}

func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	sessions, err := s.history.ListSessions(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *HTTPServer) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	id := r.PathValue("id")
	msgs, err := s.history.SessionMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": msgs})
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
