package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/scour/internal/research"
	"github.com/kalambet/scour/internal/sentiment"
	"github.com/kalambet/scour/internal/storage"
	"github.com/kalambet/scour/internal/stream"
)

const conversationURIPrefix = "conversation://"

// NewMCPServer creates an MCP server exposing research and conversation
// history as tools, and each conversation as a resource.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"scour",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("scour researches Reddit sentiment on a topic and keeps a history of research conversations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("research",
			mcp.WithDescription("Search Reddit discussions about a topic, score the overall sentiment and write a cited report. Starts a new conversation."),
			mcp.WithString("query", mcp.Description("What to research"), mcp.Required()),
			mcp.WithString("subreddit_filter", mcp.Description("Optional subreddit to restrict the search to, without the r/ prefix")),
		),
		mcpResearch(deps),
	)

	s.AddTool(
		mcp.NewTool("list_conversations",
			mcp.WithDescription("List research conversations, most recently updated first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of conversations (default 20)")),
			mcp.WithString("subreddit_filter", mcp.Description("Only conversations created with this subreddit filter")),
		),
		mcpListConversations(deps),
	)

	s.AddTool(
		mcp.NewTool("get_conversation",
			mcp.WithDescription("Return a research conversation with its messages and sources."),
			mcp.WithString("id", mcp.Description("Conversation ID"), mcp.Required()),
		),
		mcpGetConversation(deps),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			conversationURIPrefix+"{id}",
			"Research conversation",
			mcp.WithTemplateDescription("A research conversation as JSON"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		mcpResourceConversation(deps),
	)

	return s
}

// researchResult is the research tool's JSON reply.
type researchResult struct {
	ConversationID string             `json:"conversation_id"`
	Sentiment      *sentiment.Verdict `json:"sentiment,omitempty"`
	Report         string             `json:"report,omitempty"`
	Sources        []storage.Source   `json:"sources,omitempty"`
	Error          string             `json:"error,omitempty"`
}

func mcpResearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		query = strings.TrimSpace(query)
		filter := strings.TrimSpace(req.GetString("subreddit_filter", ""))

		conv, err := startConversation(deps, query, filter)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		var buf stream.Buffer
		out := deps.Research.Run(ctx, research.RunRequest{
			ConversationID: conv.ID,
			Query:          query,
			CategoryFilter: filter,
			Format:         stream.FormatTyped,
		}, &buf)

		events, err := buf.Events()
		if err != nil {
			return mcpError(fmt.Sprintf("decoding research stream: %v", err)), nil
		}

		res := researchResult{ConversationID: conv.ID, Sources: out.Sources}
		var report strings.Builder
		for _, ev := range events {
			switch ev.Kind {
			case stream.KindVerdict:
				v := ev.Verdict
				res.Sentiment = &v
			case stream.KindText:
				report.WriteString(ev.Text)
			case stream.KindError:
				res.Error = ev.Text
			}
		}
		res.Report = strings.TrimSpace(report.String())

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if out.State == research.Cancelled {
			return mcpError("research cancelled"), nil
		}
		if res.Error != "" && res.Report == "" {
			return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(b)}}, IsError: true}, nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListConversations(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		convs, err := deps.Store.ListConversations(storage.ListOptions{
			CategoryFilter: strings.TrimSpace(req.GetString("subreddit_filter", "")),
			Limit:          limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("listing conversations: %v", err)), nil
		}
		if convs == nil {
			convs = []storage.Conversation{}
		}

		b, err := json.Marshal(convs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal conversations: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetConversation(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		conv, err := deps.Store.GetConversation(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("conversation %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading conversation: %v", err)), nil
		}

		b, err := json.Marshal(conv)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal conversation: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceConversation(deps Deps) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id := strings.TrimPrefix(req.Params.URI, conversationURIPrefix)
		if id == "" || id == req.Params.URI {
			return nil, fmt.Errorf("invalid conversation URI %q", req.Params.URI)
		}

		conv, err := deps.Store.GetConversation(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
		}

		b, err := json.Marshal(conv)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversation: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
