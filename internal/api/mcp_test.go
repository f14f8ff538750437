package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/scour/internal/storage"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_Research(t *testing.T) {
	deps, searcher := newTestDeps(t)
	handler := mcpResearch(deps)

	result, err := handler(context.Background(), makeCallToolRequest("research", map[string]interface{}{
		"query":            "iphone 16 sentiment",
		"subreddit_filter": "apple",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if searcher.community != "apple" {
		t.Errorf("search community = %q", searcher.community)
	}

	var res researchResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if res.Sentiment == nil || res.Sentiment.Score != 65 {
		t.Errorf("sentiment = %+v", res.Sentiment)
	}
	if res.Report != "**Sentiment Explanation:** good [1]" {
		t.Errorf("report = %q", res.Report)
	}
	if len(res.Sources) != 2 {
		t.Errorf("sources = %d, want 2", len(res.Sources))
	}

	conv, err := deps.Store.GetConversation(res.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(conv.Messages) != 2 || conv.CategoryFilter != "apple" {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestMCPTool_Research_NoResults(t *testing.T) {
	deps, searcher := newTestDeps(t)
	searcher.hits = nil

	result, err := mcpResearch(deps)(context.Background(), makeCallToolRequest("research", map[string]interface{}{
		"query": "nothing to find",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for empty search")
	}
	if !strings.Contains(toolText(t, result), "No relevant discussions found on Reddit.") {
		t.Errorf("text = %s", toolText(t, result))
	}
}

func TestMCPTool_Research_MissingQuery(t *testing.T) {
	deps, _ := newTestDeps(t)
	result, err := mcpResearch(deps)(context.Background(), makeCallToolRequest("research", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for missing query")
	}
}

func TestMCPTool_ListAndGetConversation(t *testing.T) {
	deps, _ := newTestDeps(t)
	for _, q := range []string{"alpha", "beta"} {
		if _, err := startConversation(deps, q, ""); err != nil {
			t.Fatalf("startConversation: %v", err)
		}
	}

	result, err := mcpListConversations(deps)(context.Background(), makeCallToolRequest("list_conversations", map[string]interface{}{
		"limit": 1,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var convs []storage.Conversation
	if err := json.Unmarshal([]byte(toolText(t, result)), &convs); err != nil {
		t.Fatalf("parsing list: %v", err)
	}
	if len(convs) != 1 || convs[0].Title != "beta" {
		t.Fatalf("list = %+v, want [beta]", convs)
	}

	result, err = mcpGetConversation(deps)(context.Background(), makeCallToolRequest("get_conversation", map[string]interface{}{
		"id": convs[0].ID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	var conv storage.Conversation
	json.Unmarshal([]byte(toolText(t, result)), &conv)
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "beta" {
		t.Errorf("conversation = %+v", conv)
	}

	result, _ = mcpGetConversation(deps)(context.Background(), makeCallToolRequest("get_conversation", map[string]interface{}{
		"id": "missing",
	}))
	if !result.IsError {
		t.Error("expected error for missing conversation")
	}
}

func TestMCPResource_Conversation(t *testing.T) {
	deps, _ := newTestDeps(t)
	conv, err := startConversation(deps, "resource test", "")
	if err != nil {
		t.Fatalf("startConversation: %v", err)
	}

	contents, err := mcpResourceConversation(deps)(context.Background(), makeReadResourceRequest("conversation://"+conv.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.MIMEType != "application/json" || !strings.Contains(tc.Text, conv.ID) {
		t.Errorf("resource = %+v", tc)
	}

	if _, err := mcpResourceConversation(deps)(context.Background(), makeReadResourceRequest("conversation://missing")); err == nil {
		t.Error("expected error for missing conversation")
	}
	if _, err := mcpResourceConversation(deps)(context.Background(), makeReadResourceRequest("user://profile")); err == nil {
		t.Error("expected error for foreign URI")
	}
}
