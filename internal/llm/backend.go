// Package llm talks to chat-completion backends and exposes a resolved
// model as the two capabilities the research pipeline consumes: a single
// completion and a fragment stream.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// ErrUnavailable is returned when a backend cannot be constructed, usually
// because its credentials are missing.
var ErrUnavailable = errors.New("language model unavailable")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Backend abstracts a chat-completion service.
type Backend interface {
	Name() string

	// Chat returns the complete assistant reply.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// ChatStream yields reply fragments as they arrive. Breaking out of the
	// loop closes the underlying connection. A non-nil error is the last
	// element yielded.
	ChatStream(ctx context.Context, model string, messages []Message) iter.Seq2[string, error]

	// ListModels returns the identifiers of models the backend serves.
	ListModels(ctx context.Context) ([]string, error)
}

// Backend kinds accepted by NewBackend.
const (
	KindOpenRouter = "openrouter"
	KindOllama     = "ollama"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Kind    string
	BaseURL string
	APIKey  string
}

// NewBackend constructs the backend named by cfg.Kind.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case KindOpenRouter, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openrouter API key not set", ErrUnavailable)
		}
		if cfg.BaseURL != "" {
			return NewOpenRouterWithBaseURL(cfg.APIKey, cfg.BaseURL), nil
		}
		return NewOpenRouter(cfg.APIKey), nil
	case KindOllama:
		return NewOllama(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Kind)
	}
}
