package search

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanText reduces provider text to plain prose. Markup such as Brave's
// <strong> highlights or scraped page HTML is stripped, scripts and styles
// are dropped, and whitespace runs collapse to single spaces.
func CleanText(s string) string {
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
