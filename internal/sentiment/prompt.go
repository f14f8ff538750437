package sentiment

import "fmt"

const promptTemplate = `Analyze the sentiment of the following text and provide:
1. A sentiment score from 0-100 (0=very negative, 50=neutral, 100=very positive)
2. A sentiment label (Very Negative, Negative, Neutral, Positive, Very Positive)
3. A confidence score from 0-1

Text: %s

Respond only with a JSON object in this exact format:
{
    "score": <number 0-100>,
    "label": "<sentiment label>",
    "confidence": <number 0-1>
}`

// BuildPrompt embeds already combined text into the classification prompt.
func BuildPrompt(combined string) string {
	return fmt.Sprintf(promptTemplate, combined)
}
