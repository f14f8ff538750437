package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/scour/internal/export"
	"github.com/kalambet/scour/internal/storage"
)

const maxListLimit = 500

// queryRequest is the body of chat creation and research requests.
type queryRequest struct {
	Query           string `json:"query"`
	ChatID          string `json:"chat_id,omitempty"`
	SubredditFilter string `json:"subreddit_filter,omitempty"`
}

// decodeQueryRequest accepts a JSON body or a url-encoded/multipart form.
func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (queryRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req queryRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxRequestBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, err
		}
		req.Query = r.FormValue("query")
		req.ChatID = r.FormValue("chat_id")
		req.SubredditFilter = r.FormValue("subreddit_filter")
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	}
	req.Query = strings.TrimSpace(req.Query)
	req.SubredditFilter = strings.TrimSpace(req.SubredditFilter)
	if req.Query == "" {
		return req, errors.New("query is required")
	}
	return req, nil
}

func handleListChats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := storage.ListOptions{
			CategoryFilter: r.URL.Query().Get("filter"),
			Limit:          parseIntParam(r, "limit", 0, maxListLimit),
		}

		convs, err := deps.Store.ListConversations(opts)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing conversations: %v", err)
			return
		}
		if convs == nil {
			convs = []storage.Conversation{}
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleCreateChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeQueryRequest(w, r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
			return
		}

		conv, err := startConversation(deps, req.Query, req.SubredditFilter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleGetChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := deps.Store.GetConversation(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleRenameChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var body struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		title := strings.TrimSpace(body.Title)
		if title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}

		if err := deps.Store.RenameConversation(chi.URLParam(r, "id"), title); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handleDeleteChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteConversation(chi.URLParam(r, "id")); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func handleExportChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := deps.Store.GetConversation(chi.URLParam(r, "id"))
		if err != nil {
			storeError(w, err)
			return
		}

		switch r.URL.Query().Get("format") {
		case "markdown", "md":
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.Write([]byte(export.Markdown(conv)))
		case "", "html":
			page, err := export.HTML(conv)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "rendering export: %v", err)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write(page)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown export format %q", r.URL.Query().Get("format"))
		}
	}
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "Chat not found")
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "storage error: %v", err)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
