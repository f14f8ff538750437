// Package report drives the streamed narrative report for a research run.
package report

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/kalambet/scour/internal/sentiment"
	"github.com/kalambet/scour/internal/storage"
)

// NoResponseFragment is yielded when the model produces no text at all.
const NoResponseFragment = "No response generated. Please try again."

// errNoModel stands in for a missing streamer.
var errNoModel = errors.New("language model unavailable")

// Streamer produces a completion incrementally.
type Streamer interface {
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// Synthesizer turns a verdict and its sources into a fragment sequence.
type Synthesizer struct {
	model  Streamer
	logger *slog.Logger
}

// NewSynthesizer returns a Synthesizer backed by model. A nil model makes
// every run yield a single error fragment.
func NewSynthesizer(model Streamer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{model: model, logger: logger}
}

// Synthesize yields the report fragments in arrival order, skipping empty
// ones. Model failures never escape: they become one final fragment that
// starts with "Error calling language model:". The sequence is single-use.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, v sentiment.Verdict, sources []storage.Source) iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.model == nil {
			yield(errorFragment(errNoModel))
			return
		}

		prompt := BuildPrompt(query, v, sources)
		s.logger.Debug("synthesizing report", "prompt_chars", len(prompt), "sources", len(sources))

		n := 0
		for frag, err := range s.model.GenerateStream(ctx, prompt) {
			if err != nil {
				s.logger.Warn("report generation failed", "error", err, "fragments", n)
				yield(errorFragment(err))
				return
			}
			if frag == "" {
				continue
			}
			n++
			if !yield(frag) {
				return
			}
		}

		if n == 0 {
			s.logger.Warn("language model returned no fragments")
			yield(NoResponseFragment)
		}
	}
}

func errorFragment(err error) string {
	return "Error calling language model: " + err.Error()
}
