package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Model binds a backend to one model identifier. It satisfies the
// generator interfaces of the sentiment and report packages.
type Model struct {
	backend Backend
	name    string
}

func NewModel(b Backend, name string) *Model {
	return &Model{backend: b, name: name}
}

func (m *Model) Name() string { return m.name }

func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	return m.backend.Chat(ctx, m.name, []Message{{Role: "user", Content: prompt}})
}

func (m *Model) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return m.backend.ChatStream(ctx, m.name, []Message{{Role: "user", Content: prompt}})
}

// ErrNoModel is returned by Resolve when no candidate answers a test prompt.
var ErrNoModel = errors.New("no usable model")

const (
	checkPrompt     = "test"
	checkLimit      = 4
	maxListedChecks = 8
)

// Resolve picks the first candidate, in order, that answers a test chat
// request. Candidates are checked concurrently. When none answers, models
// listed by the backend are tried the same way, up to maxListedChecks.
func Resolve(ctx context.Context, b Backend, candidates []string, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if name, ok := firstResponsive(ctx, b, candidates, logger); ok {
		logger.Info("language model validated", "backend", b.Name(), "model", name)
		return NewModel(b, name), nil
	}

	listed, err := b.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: candidates failed and listing models failed: %w", ErrNoModel, err)
	}
	var rest []string
	for _, name := range listed {
		if !slices.Contains(candidates, name) {
			rest = append(rest, name)
		}
		if len(rest) == maxListedChecks {
			break
		}
	}
	logger.Info("configured models failed validation, trying listed models", "count", len(rest))

	if name, ok := firstResponsive(ctx, b, rest, logger); ok {
		logger.Info("language model validated", "backend", b.Name(), "model", name)
		return NewModel(b, name), nil
	}
	return nil, fmt.Errorf("%w on %s", ErrNoModel, b.Name())
}

func firstResponsive(ctx context.Context, b Backend, names []string, logger *slog.Logger) (string, bool) {
	ok := make([]bool, len(names))
	var g errgroup.Group
	g.SetLimit(checkLimit)
	for i, name := range names {
		g.Go(func() error {
			_, err := b.Chat(ctx, name, []Message{{Role: "user", Content: checkPrompt}})
			if err != nil {
				logger.Warn("model failed validation", "model", name, "error", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	g.Wait()

	for i, name := range names {
		if ok[i] {
			return name, true
		}
	}
	return "", false
}
