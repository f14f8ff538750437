package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/scour/internal/sentiment"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// verdictColor maps a label to the color used for it.
func verdictColor(label string) string {
	switch label {
	case sentiment.LabelPositive:
		return colorGreen
	case sentiment.LabelNegative:
		return colorRed
	default:
		return colorYellow
	}
}

// writeVerdict prints a one-line sentiment summary with a 20-cell gauge.
func writeVerdict(w io.Writer, v sentiment.Verdict) {
	filled := int(v.Score/5 + 0.5)
	filled = max(0, min(20, filled))
	gauge := strings.Repeat("█", filled) + strings.Repeat("░", 20-filled)
	fmt.Fprintf(w, "%s %s %s (score %.0f/100, confidence %.0f%%)\n\n",
		colorize(colorBold, "Sentiment:"),
		colorize(verdictColor(v.Label), gauge),
		colorize(verdictColor(v.Label), v.Label),
		v.Score, v.Confidence*100)
}
