package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/scour/internal/config"
	"github.com/kalambet/scour/internal/storage"
	"github.com/kalambet/scour/internal/stream"
)

// --- research ---

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Research what Reddit thinks about a question",
	Long: `Search Reddit, score the overall sentiment and stream a cited report.

Examples:
  scour research "is the framework 13 worth it"
  scour research "best budget espresso grinder" --subreddit espresso
  scour research "what about the 16 inch model" --chat 3f1c...`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subreddit, _ := cmd.Flags().GetString("subreddit")
		chatID, _ := cmd.Flags().GetString("chat")
		typed, _ := cmd.Flags().GetBool("typed")

		format := stream.FormatLegacy
		if typed {
			format = stream.FormatTyped
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runResearch(cmd, client, strings.Join(args, " "), subreddit, chatID, format)
	},
}

const legacyErrorPrefix = "Error: "

func runResearch(cmd *cobra.Command, client *apiClient, query, subreddit, chatID string, format stream.Format) error {
	printStep("Searching Reddit for %q", query)
	rs, err := client.research(cmd.Context(), query, subreddit, chatID, format)
	if err != nil {
		return err
	}
	defer rs.Close()

	id := rs.ChatID
	if id == "" {
		id = chatID
	}

	out := cmd.OutOrStdout()
	for ev, err := range rs.Events() {
		if err != nil {
			return err
		}
		switch ev.Kind {
		case stream.KindVerdict:
			writeVerdict(out, ev.Verdict)
		case stream.KindText:
			// Legacy streams carry errors as plain text.
			if format == stream.FormatLegacy && strings.HasPrefix(ev.Text, legacyErrorPrefix) {
				return fmt.Errorf("%s", strings.TrimPrefix(ev.Text, legacyErrorPrefix))
			}
			io.WriteString(out, ev.Text)
		case stream.KindError:
			return fmt.Errorf("%s", ev.Text)
		case stream.KindDone:
			fmt.Fprintln(out)
			if id != "" {
				printSuccess("Saved to chat %s", id)
			}
			return nil
		}
	}
	return fmt.Errorf("stream ended before completion")
}

func init() {
	researchCmd.Flags().String("subreddit", "", "restrict the search to one subreddit")
	researchCmd.Flags().String("chat", "", "continue an existing chat")
	researchCmd.Flags().Bool("typed", false, "request the typed event format")
}

// --- chats ---

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage saved research chats",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		subreddit, _ := cmd.Flags().GetString("subreddit")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		if subreddit != "" {
			q.Set("filter", subreddit)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path := "/api/chats"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var chats []storage.Conversation
		if err := decodeJSON(resp, &chats); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(chats) == 0 {
			fmt.Fprintln(out, "No chats found.")
			return nil
		}
		fmt.Fprintf(out, "%-36s  %-16s  %-5s  %s\n", "ID", "UPDATED", "MSGS", "TITLE")
		for _, c := range chats {
			title := c.Title
			if c.CategoryFilter != "" {
				title += colorize(colorCyan, " r/"+c.CategoryFilter)
			}
			fmt.Fprintf(out, "%-36s  %-16s  %-5d  %s\n",
				c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.MessageCount, title)
		}
		return nil
	},
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a chat with its messages and sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/chats/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var conv storage.Conversation
		if err := decodeJSON(resp, &conv); err != nil {
			return err
		}
		return writeConversation(cmd.OutOrStdout(), conv, output)
	},
}

func writeConversation(w io.Writer, conv storage.Conversation, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(conversationView(conv))
	case "", "text":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", output)
	}

	fmt.Fprintln(w, colorize(colorBold, conv.Title))
	if conv.CategoryFilter != "" {
		fmt.Fprintf(w, "r/%s\n", conv.CategoryFilter)
	}
	for _, m := range conv.Messages {
		fmt.Fprintf(w, "\n%s %s\n%s\n",
			colorize(colorCyan, "["+string(m.Role)+"]"),
			m.Timestamp.Local().Format(time.DateTime),
			m.Content)
	}
	if len(conv.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources"))
		for i, s := range conv.Sources {
			fmt.Fprintf(w, "  %d. %s (r/%s, %d upvotes)\n     %s\n", i+1, s.Title, s.Community, s.Upvotes, s.URL)
		}
	}
	return nil
}

type messageView struct {
	Role      string `yaml:"role"`
	Timestamp string `yaml:"timestamp"`
	Content   string `yaml:"content"`
}

type sourceView struct {
	Title     string `yaml:"title"`
	URL       string `yaml:"url"`
	Subreddit string `yaml:"subreddit"`
	Upvotes   int    `yaml:"upvotes"`
}

type chatView struct {
	ID        string        `yaml:"id"`
	Title     string        `yaml:"title"`
	Subreddit string        `yaml:"subreddit,omitempty"`
	CreatedAt string        `yaml:"created_at"`
	UpdatedAt string        `yaml:"updated_at"`
	Messages  []messageView `yaml:"messages"`
	Sources   []sourceView  `yaml:"sources,omitempty"`
}

// conversationView flattens a conversation into YAML-friendly fields.
func conversationView(conv storage.Conversation) chatView {
	v := chatView{
		ID:        conv.ID,
		Title:     conv.Title,
		Subreddit: conv.CategoryFilter,
		CreatedAt: conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt: conv.UpdatedAt.Format(time.RFC3339),
		Messages:  make([]messageView, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		v.Messages = append(v.Messages, messageView{
			Role:      string(m.Role),
			Timestamp: m.Timestamp.Format(time.RFC3339),
			Content:   m.Content,
		})
	}
	for _, s := range conv.Sources {
		v.Sources = append(v.Sources, sourceView{Title: s.Title, URL: s.URL, Subreddit: s.Community, Upvotes: s.Upvotes})
	}
	return v
}

var chatsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/api/chats/"+url.PathEscape(args[0])+"/title", map[string]string{"title": title})
		if err != nil {
			return err
		}
		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Renamed chat %s to %q", args[0], title)
		return nil
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/api/chats/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted chat %s", args[0])
		return nil
	},
}

var chatsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a chat as HTML or Markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		file, _ := cmd.Flags().GetString("file")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/chats/"+url.PathEscape(args[0])+"/export?format="+url.QueryEscape(format))
		if err != nil {
			return err
		}
		data, err := readAll(resp)
		if err != nil {
			return err
		}

		if file == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(file, data, 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		printSuccess("Exported chat %s to %s", args[0], file)
		return nil
	},
}

func init() {
	chatsListCmd.Flags().String("subreddit", "", "only chats filtered to this subreddit")
	chatsListCmd.Flags().Int("limit", 0, "maximum number of chats")
	chatsShowCmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
	chatsExportCmd.Flags().String("format", "html", "export format: html or markdown")
	chatsExportCmd.Flags().StringP("file", "f", "", "write to a file instead of stdout")

	chatsCmd.AddCommand(chatsListCmd, chatsShowCmd, chatsRenameCmd, chatsDeleteCmd, chatsExportCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and modify configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		keys := config.ShowAll(cfg)

		out := cmd.OutOrStdout()
		switch output {
		case "yaml":
			enc := yaml.NewEncoder(out)
			defer enc.Close()
			return enc.Encode(keys)
		case "", "text":
		default:
			return fmt.Errorf("unknown output format %q (want text or yaml)", output)
		}
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		for _, env := range cfg.MissingSecrets() {
			printWarning("%s is not set", env)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configShowCmd.Flags().StringP("output", "o", "text", "output format: text or yaml")
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd)
}
