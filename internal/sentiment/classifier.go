package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// MaxTexts is how many texts are combined into the prompt.
	MaxTexts = 5
	// MaxPromptChars caps the combined text embedded in the prompt.
	MaxPromptChars = 2000
)

// ErrParseFailure is returned by Parse when the model reply is not a usable
// JSON verdict.
var ErrParseFailure = errors.New("unparsable sentiment response")

var errNotObject = errors.New("reply is not a JSON object")

// Generator returns a single completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Classifier produces one Verdict per call. It never fails: every error
// degrades to a neutral verdict whose confidence records the cause.
type Classifier struct {
	gen    Generator
	logger *slog.Logger
}

// NewClassifier returns a Classifier backed by gen. A nil gen is treated as
// an unavailable model.
func NewClassifier(gen Generator, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gen: gen, logger: logger}
}

// Classify scores the first MaxTexts texts.
func (c *Classifier) Classify(ctx context.Context, texts []string) Verdict {
	combined := CombineTexts(texts)
	if strings.TrimSpace(combined) == "" {
		c.logger.Warn("no text provided for sentiment analysis")
		return Neutral(unavailableConfidence)
	}
	if c.gen == nil {
		c.logger.Warn("sentiment model unavailable, using neutral verdict")
		return Neutral(unavailableConfidence)
	}

	raw, err := c.gen.Generate(ctx, BuildPrompt(combined))
	if err != nil {
		c.logger.Warn("sentiment generation failed", "error", err)
		return Neutral(unavailableConfidence)
	}
	if strings.TrimSpace(raw) == "" {
		c.logger.Warn("sentiment model returned an empty reply")
		return Neutral(unavailableConfidence)
	}

	v, err := Parse(raw)
	if err != nil {
		c.logger.Warn("failed to parse sentiment verdict", "error", err, "response", truncate(raw, 200))
		return Neutral(parseFailureConfidence)
	}
	c.logger.Debug("sentiment classified", "score", v.Score, "label", v.Label, "confidence", v.Confidence)
	return v
}

// CombineTexts joins the first MaxTexts texts with a space and truncates the
// result to MaxPromptChars characters.
func CombineTexts(texts []string) string {
	if len(texts) > MaxTexts {
		texts = texts[:MaxTexts]
	}
	return truncate(strings.Join(texts, " "), MaxPromptChars)
}

// Parse extracts a Verdict from a model reply, tolerating a surrounding
// markdown code fence. Missing fields take defaults, numbers are clamped
// into range, and an unknown label is replaced by the label for the score.
func Parse(raw string) (Verdict, error) {
	body := stripFence(strings.TrimSpace(raw))

	var payload struct {
		Score      *float64 `json:"score"`
		Label      *string  `json:"label"`
		Confidence *float64 `json:"confidence"`
	}
	if err := decodeObject(body, &payload); err != nil {
		// Some models wrap the object in prose.
		start, end := strings.Index(body, "{"), strings.LastIndex(body, "}")
		if start < 0 || end <= start {
			return Verdict{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
		}
		if err := decodeObject(body[start:end+1], &payload); err != nil {
			return Verdict{}, fmt.Errorf("%w: %v", ErrParseFailure, err)
		}
	}

	v := Verdict{Score: neutralScore, Label: LabelNeutral, Confidence: missingConfidence}
	if payload.Score != nil {
		v.Score = clamp(*payload.Score, 0, 100)
	}
	if payload.Confidence != nil {
		v.Confidence = clamp(*payload.Confidence, 0, 1)
	}
	if payload.Label != nil {
		v.Label = normalizeLabel(*payload.Label)
	}
	if !ValidLabel(v.Label) {
		v.Label = LabelForScore(v.Score)
	}
	return v, nil
}

// decodeObject unmarshals s into v only when s is a JSON object. A bare
// null would otherwise decode into v without error.
func decodeObject(s string, v any) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return err
	}
	if obj == nil {
		return errNotObject
	}
	return json.Unmarshal([]byte(s), v)
}

// stripFence returns the contents of the first ```json or ``` block, or s
// unchanged when there is none.
func stripFence(s string) string {
	for _, fence := range []string{"```json", "```"} {
		_, after, ok := strings.Cut(s, fence)
		if !ok {
			continue
		}
		inner, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(inner)
	}
	return s
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	for _, l := range []string{LabelVeryNegative, LabelNegative, LabelNeutral, LabelPositive, LabelVeryPositive} {
		if strings.EqualFold(label, l) {
			return l
		}
	}
	return label
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
