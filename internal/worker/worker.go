// Package worker runs background jobs from the SQLite job queue. Today that is
// conversation titling: a short model-written title replaces the heuristic
// one chosen when the conversation was created.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/scour/internal/storage"
)

// JobTypeTitle names conversation titling jobs in the queue.
const JobTypeTitle = "conversation_title"

const maxTitleRunes = 60

// JobStore abstracts the job queue and the conversation fields a job touches.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetConversation(id string) (storage.Conversation, error)
	RenameConversationIf(id, expected, title string) (bool, error)
}

// Generator produces a single completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Worker processes conversation_title jobs.
type Worker struct {
	store  JobStore
	gen    Generator
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, gen Generator, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		gen:    gen,
		poll:   pollInterval,
		logger: logger,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeTitle})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type titlePayload struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	// HeuristicTitle is the title assigned at creation. A conversation whose
	// title no longer matches was renamed by the user and is left alone.
	HeuristicTitle string `json:"heuristic_title"`
}

// TitleJob builds a titling job for a freshly created conversation.
func TitleJob(conversationID, query, heuristicTitle string) (storage.Job, error) {
	payload, err := json.Marshal(titlePayload{
		ConversationID: conversationID,
		Query:          query,
		HeuristicTitle: heuristicTitle,
	})
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding title payload: %w", err)
	}
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeTitle,
		PayloadJSON: string(payload),
	}, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload titlePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	conv, err := w.store.GetConversation(payload.ConversationID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.Debug("conversation gone, skipping title", "conversation_id", payload.ConversationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", payload.ConversationID, err)
	}
	if conv.Title != payload.HeuristicTitle {
		return nil
	}

	raw, err := w.gen.Generate(ctx, titlePrompt(payload.Query))
	if err != nil {
		return fmt.Errorf("generating title: %w", err)
	}
	title := CleanTitle(raw)
	if title == "" || title == conv.Title {
		return nil
	}

	// Only replace the heuristic title; a user rename since then wins.
	renamed, err := w.store.RenameConversationIf(payload.ConversationID, payload.HeuristicTitle, title)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("renaming conversation: %w", err)
	}
	if !renamed {
		w.logger.Debug("conversation renamed meanwhile, keeping its title", "conversation_id", payload.ConversationID)
		return nil
	}
	w.logger.Info("conversation titled", "conversation_id", payload.ConversationID, "title", title)
	return nil
}

func titlePrompt(query string) string {
	return "Write a 3 to 5 word title for a research conversation that starts with this question. " +
		"Reply with the title only, no quotes or punctuation at the end.\n\nQuestion: " + query
}

// CleanTitle reduces a model reply to a single short title line.
func CleanTitle(raw string) string {
	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	line = strings.TrimPrefix(line, "Title:")
	line = strings.Trim(strings.TrimSpace(line), `"'*#. `)
	if utf8.RuneCountInString(line) > maxTitleRunes {
		line = strings.TrimSpace(string([]rune(line)[:maxTitleRunes]))
	}
	return line
}
