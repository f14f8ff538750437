// Package api serves the HTTP research and conversation endpoints and the MCP
// tool surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/scour/internal/research"
	"github.com/kalambet/scour/internal/storage"
	"github.com/kalambet/scour/internal/stream"
	"github.com/kalambet/scour/internal/worker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Runner executes one research run against a sink.
type Runner interface {
	Run(ctx context.Context, req research.RunRequest, sink research.Sink) research.Outcome
}

// Deps holds what the HTTP and MCP surfaces need.
type Deps struct {
	Store    *storage.Store
	Research Runner
	// Format is the wire format used when a request does not ask for one.
	Format      stream.Format
	CORSOrigins []string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// TitleJobs queues a model-written title for each new conversation.
	TitleJobs bool
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Use(CORS(deps.CORSOrigins))

	r.Get("/health", handleHealth)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/chats", handleListChats(deps))
		r.Post("/chats", handleCreateChat(deps))
		r.Get("/chats/{id}", handleGetChat(deps))
		r.Put("/chats/{id}/title", handleRenameChat(deps))
		r.Delete("/chats/{id}", handleDeleteChat(deps))
		r.Get("/chats/{id}/export", handleExportChat(deps))

		r.Post("/research", handleResearch(deps))
		r.Post("/research/{id}/stream", handleResearchStream(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "scour"})
}

// startConversation creates a conversation for query, records the query as
// its first user message and queues a title job when enabled.
func startConversation(deps Deps, query, filter string) (storage.Conversation, error) {
	title := storage.TitleFromQuery(query)
	conv, err := deps.Store.CreateConversation(title, filter)
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	msg, err := deps.Store.AppendMessage(conv.ID, storage.RoleUser, query)
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("recording user message: %w", err)
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp

	if deps.TitleJobs {
		job, err := worker.TitleJob(conv.ID, query, title)
		if err == nil {
			err = deps.Store.EnqueueJob(job)
		}
		if err != nil {
			deps.logger().Warn("failed to queue title job", "conversation_id", conv.ID, "error", err)
		}
	}
	return conv, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
