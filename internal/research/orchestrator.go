// Package research runs the streaming research pipeline: search, one
// sentiment verdict, a streamed report, and a single commit of the result
// to the conversation store.
package research

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/kalambet/scour/internal/search"
	"github.com/kalambet/scour/internal/sentiment"
	"github.com/kalambet/scour/internal/storage"
	"github.com/kalambet/scour/internal/stream"
)

const (
	// EmptySearchMessage is sent as the error event when search finds nothing.
	EmptySearchMessage = "No relevant discussions found on Reddit."
	// FallbackTranscript is persisted when the report produced no text.
	FallbackTranscript = "Report generated successfully"
)

// Searcher finds candidate discussions. Errors are treated as an empty result.
type Searcher interface {
	Search(ctx context.Context, query, community string, maxResults int) ([]search.Hit, error)
}

// Classifier scores the sentiment of hit texts.
type Classifier interface {
	Classify(ctx context.Context, texts []string) sentiment.Verdict
}

// Synthesizer streams the report for a query as text fragments.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, v sentiment.Verdict, sources []storage.Source) iter.Seq[string]
}

// Store is the part of the conversation store a run writes to.
type Store interface {
	AppendMessage(conversationID string, role storage.Role, content string) (storage.Message, error)
	AppendSources(conversationID string, sources []storage.Source) error
}

// Sink receives encoded frames. An error means the consumer is gone.
type Sink interface {
	Send(frame []byte) error
}

// State is a pipeline state. Terminated, ErrorTerminated and Cancelled are final.
type State int

const (
	Searching State = iota
	EmptyResult
	Analyzing
	Synthesizing
	Finalizing
	Terminated
	ErrorTerminated
	Cancelled
)

func (s State) String() string {
	switch s {
	case Searching:
		return "searching"
	case EmptyResult:
		return "empty_result"
	case Analyzing:
		return "analyzing"
	case Synthesizing:
		return "synthesizing"
	case Finalizing:
		return "finalizing"
	case Terminated:
		return "terminated"
	case ErrorTerminated:
		return "error_terminated"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options tune an Orchestrator. Zero delays disable pacing.
type Options struct {
	MaxResults    int
	VerdictDelay  time.Duration
	FragmentDelay time.Duration
	Logger        *slog.Logger
	Metrics       *Metrics
}

// RunRequest describes one run. The caller has already recorded the user
// message in the conversation.
type RunRequest struct {
	ConversationID string
	Query          string
	CategoryFilter string
	Format         stream.Format
}

// Outcome summarises a finished run.
type Outcome struct {
	State      State
	Verdict    sentiment.Verdict
	Transcript string // persisted assistant content; empty unless Terminated after synthesis
	Sources    []storage.Source
	Fragments  int
	Err        error
}

// Orchestrator owns the pipeline collaborators. It is safe for concurrent
// runs; each run keeps its own accumulator.
type Orchestrator struct {
	search     Searcher
	classifier Classifier
	synth      Synthesizer
	store      Store
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// New returns an Orchestrator. Unset MaxResults and Logger take defaults.
func New(s Searcher, c Classifier, syn Synthesizer, st Store, opts Options) *Orchestrator {
	if opts.MaxResults <= 0 {
		opts.MaxResults = search.DefaultMaxResults
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		search:     s,
		classifier: c,
		synth:      syn,
		store:      st,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// run carries the per-request state.
type run struct {
	req    RunRequest
	sink   Sink
	enc    *stream.Encoder
	logger *slog.Logger
	state  State
}

// send writes one event. A failed write means the client is gone.
func (r *run) send(ev stream.Event) error {
	if err := r.sink.Send(r.enc.Encode(ev)); err != nil {
		return fmt.Errorf("%w: %w", ErrClientDisconnect, err)
	}
	return nil
}

// Run executes the pipeline and writes frames to sink. It always returns an
// Outcome; panics in collaborators end the run with an error event.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, sink Sink) (out Outcome) {
	start := time.Now()
	r := &run{
		req:    req,
		sink:   sink,
		enc:    stream.NewEncoder(req.Format),
		logger: o.logger.With("conversation_id", req.ConversationID),
		state:  Searching,
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("research run panicked", "state", r.state, "panic", p, "stack", string(debug.Stack()))
			out = Outcome{State: ErrorTerminated, Err: fmt.Errorf("%w: panic in %s: %v", ErrCollaboratorFault, r.state, p)}
			if err := r.send(stream.ErrorEvent(fmt.Sprint(p))); err != nil {
				out.State = Cancelled
			}
		}
		o.opts.Metrics.observeRun(out.State, time.Since(start))
		r.logger.Info("research run finished", "state", out.State, "fragments", out.Fragments,
			"duration_ms", time.Since(start).Milliseconds(), "error", out.Err)
	}()

	return o.run(ctx, r)
}

func (o *Orchestrator) run(ctx context.Context, r *run) Outcome {
	cancelled := func(err error) Outcome {
		r.logger.Info("client disconnected, discarding run", "state", r.state, "error", err)
		if !errors.Is(err, ErrClientDisconnect) {
			err = fmt.Errorf("%w: %w", ErrClientDisconnect, err)
		}
		return Outcome{State: Cancelled, Err: err}
	}

	hits, searchErr := o.search.Search(ctx, r.req.Query, r.req.CategoryFilter, o.opts.MaxResults)
	if searchErr != nil {
		if ctx.Err() != nil {
			return cancelled(ctx.Err())
		}
		r.logger.Warn("search failed, treating as empty", "error", searchErr)
		hits = nil
	}
	if len(hits) == 0 {
		r.state = EmptyResult
		if err := r.send(stream.ErrorEvent(EmptySearchMessage)); err != nil {
			return cancelled(err)
		}
		return Outcome{State: Terminated, Err: emptyCause(searchErr)}
	}

	if len(hits) > MaxSources {
		hits = hits[:MaxSources]
	}
	sources := BuildSources(hits, o.now())

	r.state = Analyzing
	texts := make([]string, 0, SentimentInputs)
	for _, h := range hits[:min(len(hits), SentimentInputs)] {
		texts = append(texts, h.RawText)
	}
	verdict := o.classifier.Classify(ctx, texts)
	o.opts.Metrics.observeScore(verdict.Score)
	if err := r.send(stream.VerdictEvent(verdict)); err != nil {
		return cancelled(err)
	}
	if err := pause(ctx, o.opts.VerdictDelay); err != nil {
		return cancelled(err)
	}

	r.state = Synthesizing
	var transcript strings.Builder
	fragments := 0
	var sendErr error
	for frag := range o.synth.Synthesize(ctx, r.req.Query, verdict, sources) {
		if err := ctx.Err(); err != nil {
			sendErr = err
			break
		}
		if err := r.send(stream.TextEvent(frag)); err != nil {
			sendErr = err
			break
		}
		transcript.WriteString(frag)
		fragments++
		o.opts.Metrics.observeFragment()
		if err := pause(ctx, o.opts.FragmentDelay); err != nil {
			sendErr = err
			break
		}
	}
	if sendErr == nil {
		sendErr = ctx.Err()
	}
	if sendErr != nil {
		return cancelled(sendErr)
	}

	r.state = Finalizing
	content := strings.TrimSpace(transcript.String())
	if content == "" {
		content = FallbackTranscript
	}
	var persistErr error
	if _, err := o.store.AppendMessage(r.req.ConversationID, storage.RoleAssistant, content); err != nil {
		r.logger.Error("failed to persist assistant message", "error", err)
		persistErr = fmt.Errorf("%w: appending message: %w", ErrCollaboratorFault, err)
	}
	if err := o.store.AppendSources(r.req.ConversationID, sources); err != nil {
		r.logger.Error("failed to persist sources", "error", err)
		persistErr = errors.Join(persistErr, fmt.Errorf("%w: appending sources: %w", ErrCollaboratorFault, err))
	}

	out := Outcome{
		State:      Terminated,
		Verdict:    verdict,
		Transcript: content,
		Sources:    sources,
		Fragments:  fragments,
		Err:        persistErr,
	}
	if err := r.send(stream.DoneEvent()); err != nil {
		// Already committed; the client just missed the terminator.
		r.logger.Debug("client gone before done frame", "error", err)
	}
	return out
}

func emptyCause(searchErr error) error {
	switch {
	case searchErr == nil:
		return ErrEmptyResultSet
	case errors.Is(searchErr, search.ErrUnavailable):
		return fmt.Errorf("%w: %w: %w", ErrEmptyResultSet, ErrCollaboratorUnavailable, searchErr)
	default:
		return fmt.Errorf("%w: %w: %w", ErrEmptyResultSet, ErrCollaboratorFault, searchErr)
	}
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
