package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBraveURL = "https://api.search.brave.com"

// Brave implements Provider for the Brave Search API. Brave has no raw page
// content, so a hit's text is its description plus any extra snippets.
type Brave struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewBrave(apiKey string) *Brave {
	return NewBraveWithBaseURL(apiKey, defaultBraveURL)
}

func NewBraveWithBaseURL(apiKey, baseURL string) *Brave {
	return &Brave{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (b *Brave) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Description   string   `json:"description"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Hit, error) {
	count := opts.MaxResults
	if count <= 0 {
		count = DefaultMaxResults
	}
	count = min(count, 20) // API maximum
	params := url.Values{
		"q":              {RedditQuery(query, opts.Community)},
		"count":          {strconv.Itoa(count)},
		"extra_snippets": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/res/v1/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("brave: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	hits := make([]Hit, 0, len(br.Web.Results))
	for _, r := range br.Web.Results {
		parts := append([]string{r.Description}, r.ExtraSnippets...)
		hits = append(hits, Hit{
			Title:   CleanText(r.Title),
			URL:     r.URL,
			RawText: CleanText(strings.Join(parts, " ")),
		})
	}
	return hits, nil
}
