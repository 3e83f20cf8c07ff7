// Package api implements the CoPilot HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aviara/copilot/internal/buildinfo"
	"github.com/aviara/copilot/internal/identity"
	"github.com/aviara/copilot/internal/llm"
	"github.com/aviara/copilot/internal/orchestrator"
	"github.com/aviara/copilot/internal/settings"
	"github.com/aviara/copilot/internal/thread"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen   string
	orch     *orchestrator.Orchestrator
	threads  *thread.SQLiteStore
	settings *settings.Resolver
	identity identity.Resolver
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates the API server.
func NewServer(listen string, orch *orchestrator.Orchestrator, threads *thread.SQLiteStore, resolver *settings.Resolver, ident identity.Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen:   listen,
		orch:     orch,
		threads:  threads,
		settings: resolver,
		identity: ident,
		logger:   logger.With("component", "api"),
	}
}

// Handler builds the route table. Exposed separately so tests can drive
// it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat
	mux.HandleFunc("POST /v1/chat", s.requireUser(s.handleChat))

	// Conversation browsing
	mux.HandleFunc("GET /v1/conversations", s.requireUser(s.handleConversationList))
	mux.HandleFunc("GET /v1/conversations/{id}", s.requireUser(s.handleConversationGet))

	// Settings
	mux.HandleFunc("GET /v1/settings", s.requireUser(s.handleSettings))

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for streaming responses
	}

	s.logger.Info("starting API server", "listen", s.listen)
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

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// requireUser resolves the caller's identity before the handler runs.
// A missing or invalid identity is a clean non-streamed 401; no handler
// bytes are written.
func (s *Server) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.identity.Resolve(r)
		if err != nil {
			s.errorResponse(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r, userID)
	}
}

// ChatRequest is the inbound chat body. Only the trailing user message
// is persisted; earlier entries exist for client-side convenience and
// are ignored in favor of the durable thread.
type ChatRequest struct {
	Messages       []ChatMessage `json:"messages"`
	ConversationID string        `json:"conversationId,omitempty"`
}

// ChatMessage is one entry of the inbound message list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
}

// streamFrame is one SSE data payload.
type streamFrame struct {
	Type    string `json:"type"` // text | tool | done | error
	Content string `json:"content,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := lastUserContent(req.Messages)
	if content == "" {
		s.errorResponse(w, http.StatusBadRequest, "a user message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := http.NewResponseController(w)
	started := false

	orchReq := orchestrator.Request{
		UserID:         userID,
		ConversationID: req.ConversationID,
		Content:        content,

		// Headers stay writable until the critical path is durable, so
		// the conversation id can ride ahead of the first byte.
		Started: func(conversationID string, created bool) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
			w.Header().Set("X-Conversation-Id", conversationID)
			w.WriteHeader(http.StatusOK)
			flusher.Flush()
			started = true
		},

		Stream: func(event llm.StreamEvent) {
			switch event.Kind {
			case llm.KindToken:
				s.writeSSE(w, streamFrame{Type: "text", Content: event.Token})
			case llm.KindToolCallStart:
				// SSE comment as keepalive while the tool runs.
				fmt.Fprintf(w, ": keepalive\n\n")
			case llm.KindToolCallDone:
				s.writeSSE(w, streamFrame{
					Type:   "tool",
					Tool:   event.ToolName,
					Result: event.ToolResult,
					Error:  event.ToolError,
				})
			case llm.KindDone:
				s.writeSSE(w, streamFrame{Type: "done"})
			}
			flusher.Flush()

			// Reset the write deadline after every event so long tool
			// loops don't trip the server timeout.
			if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
				s.logger.Debug("failed to reset write deadline", "error", err)
			}
		},
	}

	result, err := s.orch.Run(r.Context(), orchReq)
	if err != nil {
		if !started {
			// Nothing sent yet: a clean request-level failure.
			switch {
			case errors.Is(err, orchestrator.ErrConversationNotFound):
				s.errorResponse(w, http.StatusNotFound, "conversation not found")
			default:
				s.logger.Error("chat turn failed", "error", err)
				s.errorResponse(w, http.StatusInternalServerError, "chat error")
			}
			return
		}
		// Bytes are in flight; the caller observes an abruptly
		// terminated stream. Any detached work tied to this turn still
		// has to settle before the request is accounted done.
		s.logger.Error("chat stream terminated", "error", err)
		s.writeSSE(w, streamFrame{Type: "error", Error: "stream terminated"})
		flusher.Flush()
		if result != nil {
			result.Wait()
		}
		return
	}

	// Join the detached title task before the request is accounted done.
	result.Wait()
}

func lastUserContent(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == thread.RoleUser && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	conversations, err := s.threads.ListConversations(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("list conversations failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"conversations": conversations}, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")

	conv, err := s.threads.GetConversation(r.Context(), id, userID)
	if err != nil {
		s.logger.Error("get conversation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}
	if conv == nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	messages, err := s.threads.ReconstructThread(r.Context(), id)
	if err != nil {
		s.logger.Error("reconstruct thread failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversation": conv,
		"messages":     messages,
	}, s.logger)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, userID string) {
	gs := s.settings.Resolve(r.Context(), userID)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, gs, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "CoPilot",
		"version": buildinfo.Version,
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status": "ok",
		"uptime": buildinfo.Uptime().String(),
	}, s.logger)
}

func (s *Server) writeSSE(w http.ResponseWriter, frame streamFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Debug("failed to marshal SSE frame", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("failed to write SSE frame", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
