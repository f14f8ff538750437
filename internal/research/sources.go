package research

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/scour/internal/search"
	"github.com/kalambet/scour/internal/storage"
)

const (
	// MaxSources caps the hits used for the prompt, citations and stored sources.
	MaxSources = 8
	// SentimentInputs is how many of those hits feed the classifier.
	SentimentInputs = 5
	// ExcerptChars caps a stored source excerpt.
	ExcerptChars = 1000

	unknownCommunity = "unknown"
	untitled         = "No Title"
)

var (
	communityRe = regexp.MustCompile(`reddit\.com/r/([^/]+)`)
	upvotesRe   = regexp.MustCompile(`(\d+)\s*(upvotes?|karma|points?)`)
)

// BuildSources projects hits into sources, preserving order.
func BuildSources(hits []search.Hit, now time.Time) []storage.Source {
	sources := make([]storage.Source, 0, len(hits))
	for _, h := range hits {
		title := h.Title
		if strings.TrimSpace(title) == "" {
			title = untitled
		}
		sources = append(sources, storage.Source{
			ID:        uuid.New().String(),
			Title:     title,
			URL:       h.URL,
			Community: CommunityFromURL(h.URL),
			Upvotes:   UpvotesFromText(h.RawText),
			Excerpt:   truncateRunes(h.RawText, ExcerptChars),
			Timestamp: now,
		})
	}
	return sources
}

// CommunityFromURL returns the subreddit named in a Reddit URL, or "unknown".
func CommunityFromURL(u string) string {
	if m := communityRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return unknownCommunity
}

// UpvotesFromText returns the first "<n> upvotes|karma|points" count found
// in text, or 0.
func UpvotesFromText(text string) int {
	m := upvotesRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
