package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTavilyURL = "https://api.tavily.com"

// Tavily implements Provider for the Tavily search API.
type Tavily struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewTavily(apiKey string) *Tavily {
	return NewTavilyWithBaseURL(apiKey, defaultTavilyURL)
}

// NewTavilyWithBaseURL is used by tests to point at an httptest server.
func NewTavilyWithBaseURL(apiKey, baseURL string) *Tavily {
	return &Tavily{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	IncludeDomains    []string `json:"include_domains"`
	MaxResults        int      `json:"max_results"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeRawContent bool     `json:"include_raw_content"`
}

type tavilyResponse struct {
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent *string `json:"raw_content"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string, opts Options) ([]Hit, error) {
	body, err := json.Marshal(tavilyRequest{
		Query:             RedditQuery(query, opts.Community),
		SearchDepth:       "advanced",
		IncludeDomains:    []string{"reddit.com"},
		MaxResults:        opts.MaxResults,
		IncludeAnswer:     false,
		IncludeRawContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: HTTP %d: %s", resp.StatusCode, string(msg))
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	hits := make([]Hit, 0, len(tr.Results))
	for _, r := range tr.Results {
		text := r.Content
		if text == "" && r.RawContent != nil {
			text = CleanText(*r.RawContent)
		}
		hits = append(hits, Hit{Title: r.Title, URL: r.URL, RawText: text})
	}
	return hits, nil
}
