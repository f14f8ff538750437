package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/scour/internal/sentiment"
	"github.com/kalambet/scour/internal/storage"
	"github.com/kalambet/scour/internal/stream"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

// newTestServer answers "METHOD /path" keys with canned bodies. Bodies that
// start with "data:" are served as an event stream.
func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			if strings.HasPrefix(resp, "data:") {
				w.Header().Set("Content-Type", "text/event-stream")
				w.Header().Set("X-Chat-ID", "chat-new")
			} else {
				w.Header().Set("Content-Type", "application/json")
			}
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"Chat not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

// useServer points every command at ts for the duration of the test.
func useServer(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	origNoColor := noColor
	noColor = true
	t.Cleanup(func() {
		newAPIClient = orig
		noColor = origNoColor
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

var ctx = context.Background()

const legacyStream = `data: {"score":72,"label":"Positive","confidence":0.8}

data: "Most people "

data: "like it [1]."

data: [DONE]

`

func TestResearchCommand_NewChat(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/research": legacyStream,
	})
	useServer(t, ts)

	out, err := execute(t, "research", "is", "it", "good", "--subreddit", "golang", "--chat", "", "--typed=false")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out, "Positive") || !strings.Contains(out, "score 72/100") {
		t.Errorf("verdict not rendered: %q", out)
	}
	if !strings.Contains(out, "Most people like it [1].") {
		t.Errorf("report text not rendered: %q", out)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Path != "/api/research?format=legacy" {
		t.Errorf("path = %q, want /api/research?format=legacy", r.Path)
	}
	if !strings.Contains(r.Body, `"query":"is it good"`) {
		t.Errorf("body missing query: %s", r.Body)
	}
	if !strings.Contains(r.Body, `"subreddit_filter":"golang"`) {
		t.Errorf("body missing subreddit filter: %s", r.Body)
	}
}

func TestResearchCommand_ExistingChatTyped(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/research/abc/stream": `data: {"type":"verdict","score":20,"label":"Negative","confidence":0.6}

data: {"type":"text","text":"Mostly complaints."}

data: {"type":"done"}

`,
	})
	useServer(t, ts)

	out, err := execute(t, "research", "follow up", "--chat", "abc", "--typed", "--subreddit", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Negative") || !strings.Contains(out, "Mostly complaints.") {
		t.Errorf("output = %q", out)
	}
	if got := ts.requests[0].Path; got != "/api/research/abc/stream?format=typed" {
		t.Errorf("path = %q", got)
	}
}

func TestResearchCommand_ErrorEvent(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/research": "data: \"Error: No relevant discussions found on Reddit.\"\n\ndata: [DONE]\n\n",
	})
	useServer(t, ts)

	_, err := execute(t, "research", "nothing here", "--chat", "", "--typed=false", "--subreddit", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "No relevant discussions found on Reddit.") {
		t.Errorf("error = %v", err)
	}
}

func TestResearchCommand_TypedErrorEvent(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/research": "data: {\"type\":\"error\",\"message\":\"boom\"}\n\ndata: {\"type\":\"done\"}\n\n",
	})
	useServer(t, ts)

	_, err := execute(t, "research", "q", "--chat", "", "--typed", "--subreddit", "")
	if err == nil || err.Error() != "boom" {
		t.Errorf("error = %v, want boom", err)
	}
}

func TestResearchCommand_UnknownChat(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	useServer(t, ts)

	_, err := execute(t, "research", "q", "--chat", "missing", "--typed=false", "--subreddit", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "Chat not found") {
		t.Errorf("error = %v", err)
	}
}

func TestResearchStream_TruncatedBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/research": "data: \"partial\"\n\n",
	})
	rs, err := ts.client().research(ctx, "q", "", "", stream.FormatLegacy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rs.Close()

	if rs.ChatID != "chat-new" {
		t.Errorf("ChatID = %q, want chat-new", rs.ChatID)
	}
	var kinds []stream.Kind
	for ev, err := range rs.Events() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 1 || kinds[0] != stream.KindText {
		t.Errorf("kinds = %v, want [text]", kinds)
	}
}

func TestChatsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/chats": `[{"id":"c1","title":"espresso grinders","messages":[],"sources":[],"created_at":"2026-01-02T10:00:00Z","updated_at":"2026-01-02T11:00:00Z","subreddit_filter":"espresso","message_count":2}]`,
	})
	useServer(t, ts)

	out, err := execute(t, "chats", "list", "--subreddit", "espresso", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "c1") || !strings.Contains(out, "espresso grinders r/espresso") {
		t.Errorf("output = %q", out)
	}
	if got := ts.requests[0].Path; got != "/api/chats?filter=espresso&limit=5" {
		t.Errorf("path = %q", got)
	}
}

func TestChatsList_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/chats": `[]`,
	})
	useServer(t, ts)

	out, err := execute(t, "chats", "list", "--subreddit", "", "--limit", "0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No chats found.") {
		t.Errorf("output = %q", out)
	}
	if got := ts.requests[0].Path; got != "/api/chats" {
		t.Errorf("path = %q, want /api/chats", got)
	}
}

const chatJSON = `{"id":"c1","title":"espresso grinders","created_at":"2026-01-02T10:00:00Z","updated_at":"2026-01-02T11:00:00Z",
"messages":[{"id":"m1","role":"user","content":"best grinder?","timestamp":"2026-01-02T10:00:00Z"},
{"id":"m2","role":"assistant","content":"People like the DF64 [1].","timestamp":"2026-01-02T10:00:05Z"}],
"sources":[{"id":"s1","title":"DF64 review","url":"https://reddit.com/r/espresso/1","subreddit":"espresso","upvotes":120,"content":"...","timestamp":"2026-01-02T10:00:05Z"}]}`

func TestChatsShow_YAML(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/chats/c1": chatJSON,
	})
	useServer(t, ts)

	out, err := execute(t, "chats", "show", "c1", "--output", "yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got chatView
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("yaml parse error: %v\n%s", err, out)
	}
	if got.ID != "c1" || got.Title != "espresso grinders" {
		t.Errorf("got %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != "assistant" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if len(got.Sources) != 1 || got.Sources[0].Subreddit != "espresso" || got.Sources[0].Upvotes != 120 {
		t.Errorf("sources = %+v", got.Sources)
	}
}

func TestChatsShow_Text(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/chats/c1": chatJSON,
	})
	useServer(t, ts)

	out, err := execute(t, "chats", "show", "c1", "--output", "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"espresso grinders", "[user]", "best grinder?", "People like the DF64 [1].", "1. DF64 review (r/espresso, 120 upvotes)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestChatsShow_BadOutput(t *testing.T) {
	if err := writeConversation(&bytes.Buffer{}, storage.Conversation{}, "xml"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestChatsRename(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /api/chats/c1/title": `{"success":true}`,
	})
	useServer(t, ts)

	if _, err := execute(t, "chats", "rename", "c1", "Grinder", "shootout"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := ts.requests[0]
	if r.Method != "PUT" {
		t.Errorf("method = %q, want PUT", r.Method)
	}
	if !strings.Contains(r.Body, `"title":"Grinder shootout"`) {
		t.Errorf("body = %s", r.Body)
	}
}

func TestChatsDelete_NotFound(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	useServer(t, ts)

	_, err := execute(t, "chats", "delete", "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Chat not found") {
		t.Errorf("error = %v", err)
	}
}

func TestChatsExport_File(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/chats/c1/export": `# espresso grinders`,
	})
	useServer(t, ts)

	path := filepath.Join(t.TempDir(), "chat.md")
	if _, err := execute(t, "chats", "export", "c1", "--format", "markdown", "--file", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(data) != "# espresso grinders" {
		t.Errorf("export = %q", data)
	}
	if got := ts.requests[0].Path; got != "/api/chats/c1/export?format=markdown" {
		t.Errorf("path = %q", got)
	}
}

func TestDecodeJSON_ErrorMessage(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	resp, err := ts.client().get(ctx, "/api/chats/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = decodeJSON(resp, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "server returned 404: Chat not found" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := &apiClient{baseURL: "http://127.0.0.1:1", httpClient: http.DefaultClient}
	_, err := c.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "is scour running?") {
		t.Errorf("error = %v", err)
	}
}

func TestWriteVerdict(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	tests := []struct {
		v     sentiment.Verdict
		gauge string
	}{
		{sentiment.Verdict{Score: 0, Label: sentiment.LabelNegative}, strings.Repeat("░", 20)},
		{sentiment.Verdict{Score: 50, Label: sentiment.LabelNeutral, Confidence: 0.5}, strings.Repeat("█", 10) + strings.Repeat("░", 10)},
		{sentiment.Verdict{Score: 100, Label: sentiment.LabelPositive, Confidence: 1}, strings.Repeat("█", 20)},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		writeVerdict(&buf, tt.v)
		if !strings.Contains(buf.String(), tt.gauge) {
			t.Errorf("score %v: output %q missing gauge %q", tt.v.Score, buf.String(), tt.gauge)
		}
		if !strings.Contains(buf.String(), tt.v.Label) {
			t.Errorf("score %v: output %q missing label", tt.v.Score, buf.String())
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "scour version dev\n" {
		t.Errorf("output = %q", out)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(t.TempDir())
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(3, 100); got != "3" {
		t.Errorf("countLabel(3) = %q", got)
	}
	if got := countLabel(100, 100); got != "100+" {
		t.Errorf("countLabel(100) = %q", got)
	}
}
