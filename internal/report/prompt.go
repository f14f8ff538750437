package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/scour/internal/sentiment"
	"github.com/kalambet/scour/internal/storage"
)

// excerptChars is how much of each source excerpt goes into the prompt.
const excerptChars = 500

// Mandatory section headings of the report.
const (
	SectionExplanation = "**Sentiment Explanation:**"
	SectionAnswer      = "**Direct Answer:**"
	SectionDrivers     = "**Key Sentiment Drivers:**"
	SectionContrary    = "**Contradicting Views:**"
)

// BuildPrompt assembles the synthesis prompt. Sources are numbered from 1
// in the order given, which is the numbering the model uses for citations.
func BuildPrompt(query string, v sentiment.Verdict, sources []storage.Source) string {
	parts := make([]string, 0, len(sources))
	for i, src := range sources {
		parts = append(parts, fmt.Sprintf("Source [%d]: %s\nSubreddit: r/%s\nContent: %s...",
			i+1, src.Title, src.Community, head(src.Excerpt, excerptChars)))
	}

	score := strconv.FormatFloat(v.Score, 'f', -1, 64)
	label := v.Label

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a social listening analyst. Analyze the following Reddit discussions about %q and provide comprehensive insights.\n\n", query)
	sb.WriteString("Context from Reddit:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	fmt.Fprintf(&sb, "\n\nThe overall sentiment score for %q is %s/100 (%s) with %.0f%% confidence.\n\n", query, score, label, v.Confidence*100)
	sb.WriteString("You MUST follow this exact structure in your response:\n\n")

	fmt.Fprintf(&sb, "%s\nExplain why the sentiment score is %s/100 (%s). What specific aspects of %q drive this sentiment? What are the main factors that led to this %s assessment? (2-3 sentences)\n\n",
		SectionExplanation, score, label, query, strings.ToLower(label))
	fmt.Fprintf(&sb, "%s\nProvide a 2-3 sentence summary of the overall sentiment about %q on Reddit based on the discussions analyzed.\n\n",
		SectionAnswer, query)
	fmt.Fprintf(&sb, "%s\nExplain WHY people feel this way. Provide a bulleted list of the main factors driving the sentiment:\n", SectionDrivers)
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&sb, "- Driver %d (with citation [X] if referencing a specific source)\n", i)
	}
	fmt.Fprintf(&sb, "\n%s\nWhat are the minority opinions or dissenting views? What do critics or skeptics say?\n", SectionContrary)
	for i := 1; i <= 2; i++ {
		fmt.Fprintf(&sb, "- Contradicting point %d (with citation [X] if referencing a specific source)\n", i)
	}
	sb.WriteString("\nUse citations like [1], [2], etc., to reference the sources provided above. Be concise, data-driven, and specific in your analysis.\n")
	return sb.String()
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
