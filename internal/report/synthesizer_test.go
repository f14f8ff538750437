package report

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/scour/internal/sentiment"
	"github.com/kalambet/scour/internal/storage"
)

// scriptedStreamer yields fragments then an optional error.
type scriptedStreamer struct {
	fragments []string
	err       error
	pulled    int
	prompt    string
}

func (s *scriptedStreamer) GenerateStream(_ context.Context, prompt string) iter.Seq2[string, error] {
	s.prompt = prompt
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			s.pulled++
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

func drain(seq iter.Seq[string]) []string {
	var out []string
	for f := range seq {
		out = append(out, f)
	}
	return out
}

func testSources(n int) []storage.Source {
	out := make([]storage.Source, n)
	for i := range out {
		out[i] = storage.Source{
			Title:     fmt.Sprintf("Thread %d", i+1),
			Community: "apple",
			Excerpt:   strings.Repeat("x", 600),
		}
	}
	return out
}

func TestSynthesizeYieldsFragmentsInOrder(t *testing.T) {
	m := &scriptedStreamer{fragments: []string{"**Sentiment", "", " Explanation:**", "\nbody"}}
	got := drain(NewSynthesizer(m, nil).Synthesize(context.Background(), "q", sentiment.Neutral(0.5), testSources(2)))

	assert.Equal(t, []string{"**Sentiment", " Explanation:**", "\nbody"}, got)
}

func TestSynthesizeNoFragments(t *testing.T) {
	m := &scriptedStreamer{fragments: []string{"", ""}}
	got := drain(NewSynthesizer(m, nil).Synthesize(context.Background(), "q", sentiment.Neutral(0), nil))

	assert.Equal(t, []string{NoResponseFragment}, got)
}

func TestSynthesizeErrorBeforeFirstFragment(t *testing.T) {
	m := &scriptedStreamer{err: errors.New("401 unauthorized")}
	got := drain(NewSynthesizer(m, nil).Synthesize(context.Background(), "q", sentiment.Neutral(0), nil))

	assert.Equal(t, []string{"Error calling language model: 401 unauthorized"}, got)
}

func TestSynthesizeErrorMidStream(t *testing.T) {
	m := &scriptedStreamer{fragments: []string{"a", "b"}, err: errors.New("reset")}
	got := drain(NewSynthesizer(m, nil).Synthesize(context.Background(), "q", sentiment.Neutral(0), nil))

	assert.Equal(t, []string{"a", "b", "Error calling language model: reset"}, got)
}

func TestSynthesizeNilModel(t *testing.T) {
	got := drain(NewSynthesizer(nil, nil).Synthesize(context.Background(), "q", sentiment.Neutral(0), nil))
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "Error calling language model:"))
}

func TestSynthesizeStopsWhenConsumerStops(t *testing.T) {
	m := &scriptedStreamer{fragments: []string{"a", "b", "c", "d"}}
	for range NewSynthesizer(m, nil).Synthesize(context.Background(), "q", sentiment.Neutral(0), nil) {
		break
	}
	assert.Equal(t, 1, m.pulled)
}

func TestBuildPrompt(t *testing.T) {
	v := sentiment.Verdict{Score: 72, Label: sentiment.LabelPositive, Confidence: 0.85}
	p := BuildPrompt("iPhone 16 sentiment", v, testSources(3))

	for _, want := range []string{
		`about "iPhone 16 sentiment"`,
		"Source [1]: Thread 1\nSubreddit: r/apple\nContent: " + strings.Repeat("x", 500) + "...",
		"Source [3]: Thread 3",
		"72/100 (Positive) with 85% confidence",
		"this positive assessment",
		SectionExplanation, SectionAnswer, SectionDrivers, SectionContrary,
		"[1], [2]",
	} {
		assert.Contains(t, p, want)
	}
	assert.NotContains(t, p, "Source [4]")
	assert.NotContains(t, p, strings.Repeat("x", 501))
}
