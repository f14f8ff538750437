// Package export renders a stored conversation as a Markdown document or a
// standalone HTML page.
package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/kalambet/scour/internal/storage"
)

const timeFormat = "2006-01-02 15:04 UTC"

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown renders conv with one section per message followed by the
// numbered source list.
func Markdown(conv storage.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Title)
	fmt.Fprintf(&b, "_Created %s", conv.CreatedAt.UTC().Format(timeFormat))
	if conv.CategoryFilter != "" {
		fmt.Fprintf(&b, " · r/%s", conv.CategoryFilter)
	}
	b.WriteString("_\n\n")

	for _, m := range conv.Messages {
		switch m.Role {
		case storage.RoleUser:
			b.WriteString("## Question\n\n")
			for _, line := range strings.Split(strings.TrimSpace(m.Content), "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
			b.WriteString("\n")
		default:
			b.WriteString("## Report\n\n")
			b.WriteString(strings.TrimSpace(m.Content))
			b.WriteString("\n\n")
		}
	}

	if len(conv.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		for i, s := range conv.Sources {
			fmt.Fprintf(&b, "%d. [%s](%s) · r/%s", i+1, escapeLinkText(s.Title), s.URL, s.Community)
			if s.Upvotes > 0 {
				fmt.Fprintf(&b, " · %d upvotes", s.Upvotes)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// HTML renders conv as a self-contained HTML page.
func HTML(conv storage.Conversation) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(conv)), &body); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(conv.Title))
	out.WriteString("<style>body{font-family:system-ui,sans-serif;max-width:46rem;margin:2rem auto;padding:0 1rem;line-height:1.5}" +
		"blockquote{border-left:3px solid #ccc;margin-left:0;padding-left:1rem;color:#444}</style>\n")
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

func escapeLinkText(s string) string {
	r := strings.NewReplacer("[", `\[`, "]", `\]`)
	return r.Replace(s)
}
