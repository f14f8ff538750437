// Package sentiment scores a batch of discussion texts with a single
// structured language-model call.
package sentiment

const (
	LabelVeryNegative = "Very Negative"
	LabelNegative     = "Negative"
	LabelNeutral      = "Neutral"
	LabelPositive     = "Positive"
	LabelVeryPositive = "Very Positive"
)

// Fallback confidences. A zero confidence means the model was never
// consulted or did not answer; parseFailureConfidence means it answered
// with something unusable.
const (
	unavailableConfidence  = 0.0
	parseFailureConfidence = 0.3
	missingConfidence      = 0.5
	neutralScore           = 50
)

// Verdict is the overall sentiment of a run. Score is in [0,100] and
// Confidence in [0,1].
type Verdict struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Neutral returns the fallback verdict with the given confidence.
func Neutral(confidence float64) Verdict {
	return Verdict{Score: neutralScore, Label: LabelNeutral, Confidence: confidence}
}

// ValidLabel reports whether label is one of the five known labels.
func ValidLabel(label string) bool {
	switch label {
	case LabelVeryNegative, LabelNegative, LabelNeutral, LabelPositive, LabelVeryPositive:
		return true
	}
	return false
}

// LabelForScore buckets a score into a label.
func LabelForScore(score float64) string {
	switch {
	case score < 20:
		return LabelVeryNegative
	case score < 40:
		return LabelNegative
	case score <= 60:
		return LabelNeutral
	case score <= 80:
		return LabelPositive
	default:
		return LabelVeryPositive
	}
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	return max(lo, min(v, hi))
}
