package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/scour/internal/research"
	"github.com/kalambet/scour/internal/storage"
	"github.com/kalambet/scour/internal/stream"
)

// sseSink writes frames straight to the response and flushes each one.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	r       *http.Request
}

func (s *sseSink) Send(frame []byte) error {
	if err := s.r.Context().Err(); err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// requestFormat picks the wire format from ?format=, falling back to the
// configured default.
func requestFormat(deps Deps, r *http.Request) (stream.Format, error) {
	if v := r.URL.Query().Get("format"); v != "" {
		return stream.ParseFormat(v)
	}
	return deps.Format, nil
}

func handleResearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeQueryRequest(w, r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
			return
		}
		format, err := requestFormat(deps, r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if _, ok := w.(http.Flusher); !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		conv, err := startConversation(deps, req.Query, req.SubredditFilter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		w.Header().Set("X-Chat-ID", conv.ID)
		streamRun(deps, w, r, research.RunRequest{
			ConversationID: conv.ID,
			Query:          req.Query,
			CategoryFilter: req.SubredditFilter,
			Format:         format,
		})
	}
}

func handleResearchStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		req, err := decodeQueryRequest(w, r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
			return
		}
		format, err := requestFormat(deps, r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if _, ok := w.(http.Flusher); !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		conv, err := deps.Store.GetConversation(id)
		if err != nil {
			storeError(w, err)
			return
		}
		if _, err := deps.Store.AppendMessage(id, storage.RoleUser, req.Query); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				storeError(w, err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "recording user message: %v", err)
			return
		}

		filter := req.SubredditFilter
		if filter == "" {
			filter = conv.CategoryFilter
		}
		streamRun(deps, w, r, research.RunRequest{
			ConversationID: id,
			Query:          req.Query,
			CategoryFilter: filter,
			Format:         format,
		})
	}
}

func streamRun(deps Deps, w http.ResponseWriter, r *http.Request, req research.RunRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, flusher: w.(http.Flusher), r: r}
	sink.flusher.Flush()

	out := deps.Research.Run(r.Context(), req, sink)
	if out.State == research.Cancelled {
		deps.logger().Debug("research stream closed by client", "conversation_id", req.ConversationID)
	}
}
