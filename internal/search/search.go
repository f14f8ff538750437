// Package search finds Reddit discussion threads through a pluggable web
// search backend.
//
// Each backend implements [Provider]. The [Manager] routes queries to the
// configured backend and scopes them to reddit.com, optionally to a single
// community.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnavailable is returned when no provider is configured, typically
// because its API key is missing.
var ErrUnavailable = errors.New("search provider unavailable")

// DefaultMaxResults is used when a caller passes a non-positive limit.
const DefaultMaxResults = 10

// Hit is one candidate discussion returned by a provider.
type Hit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	RawText string `json:"content"`
}

// Options narrow a provider query.
type Options struct {
	// Community restricts results to one subreddit. Empty means all of Reddit.
	Community  string
	MaxResults int
}

// Provider is implemented by search backends.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Hit, error)
}

// Manager holds the configured providers and routes searches to the primary one.
type Manager struct {
	providers map[string]Provider
	primary   string
	logger    *slog.Logger
}

func NewManager(primary string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
		logger:    logger,
	}
}

func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Configured reports whether the primary provider is registered.
func (m *Manager) Configured() bool {
	_, ok := m.providers[m.primary]
	return ok
}

// Search queries the primary provider for Reddit threads about query. The
// returned hits keep provider relevance order.
func (m *Manager) Search(ctx context.Context, query, community string, maxResults int) ([]Hit, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, fmt.Errorf("%w: %q not configured", ErrUnavailable, m.primary)
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	opts := Options{Community: NormalizeCommunity(community), MaxResults: maxResults}

	hits, err := p.Search(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", p.Name(), err)
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	m.logger.Debug("search completed", "provider", p.Name(), "query", query, "community", opts.Community, "hits", len(hits))
	return hits, nil
}

// NormalizeCommunity strips an "r/" prefix and surrounding slashes.
func NormalizeCommunity(c string) string {
	c = strings.TrimSpace(c)
	c = strings.TrimPrefix(c, "/")
	c = strings.TrimPrefix(c, "r/")
	return strings.Trim(c, "/")
}

// RedditQuery scopes query to reddit.com or to one of its communities.
func RedditQuery(query, community string) string {
	if community == "" {
		return query + " site:reddit.com"
	}
	return query + " site:reddit.com/r/" + community
}
