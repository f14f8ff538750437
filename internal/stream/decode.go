package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/kalambet/scour/internal/sentiment"
)

// ErrMalformedFrame is returned for payloads that match neither format.
var ErrMalformedFrame = errors.New("malformed frame")

// Decode interprets one frame payload (the text after "data: "). Both
// formats are accepted. In the legacy format an object carrying score and
// label is a verdict, [DONE] ends the run, and any JSON string is narrative
// text, including "Error: ..." messages.
func Decode(payload string) (Event, error) {
	payload = strings.TrimSpace(payload)
	if payload == donePayload {
		return DoneEvent(), nil
	}

	var raw any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch v := raw.(type) {
	case string:
		return TextEvent(v), nil
	case map[string]any:
		if _, ok := v["type"]; ok {
			return decodeTyped(payload)
		}
		_, hasScore := v["score"]
		_, hasLabel := v["label"]
		if hasScore && hasLabel {
			var tv typedVerdict
			if err := json.Unmarshal([]byte(payload), &tv); err != nil {
				return Event{}, fmt.Errorf("%w: verdict: %v", ErrMalformedFrame, err)
			}
			return verdictFrom(tv), nil
		}
	}
	return Event{}, fmt.Errorf("%w: unexpected payload %.80q", ErrMalformedFrame, payload)
}

func decodeTyped(payload string) (Event, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch head.Type {
	case KindVerdict:
		var tv typedVerdict
		if err := json.Unmarshal([]byte(payload), &tv); err != nil {
			return Event{}, fmt.Errorf("%w: verdict: %v", ErrMalformedFrame, err)
		}
		return verdictFrom(tv), nil
	case KindText:
		var tt typedText
		if err := json.Unmarshal([]byte(payload), &tt); err != nil {
			return Event{}, fmt.Errorf("%w: text: %v", ErrMalformedFrame, err)
		}
		return TextEvent(tt.Text), nil
	case KindError:
		var te typedError
		if err := json.Unmarshal([]byte(payload), &te); err != nil {
			return Event{}, fmt.Errorf("%w: error: %v", ErrMalformedFrame, err)
		}
		return ErrorEvent(te.Message), nil
	case KindDone:
		return DoneEvent(), nil
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, head.Type)
	}
}

func verdictFrom(tv typedVerdict) Event {
	return VerdictEvent(sentiment.Verdict{Score: tv.Score, Label: tv.Label, Confidence: tv.Confidence})
}

// ReadFrames parses an SSE body into events. Comment lines and fields other
// than data are ignored; multi-line data fields are joined with "\n".
// Iteration stops after the first error.
func ReadFrames(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var data []string
		flush := func() bool {
			if len(data) == 0 {
				return true
			}
			ev, err := Decode(strings.Join(data, "\n"))
			data = data[:0]
			if !yield(ev, err) {
				return false
			}
			return err == nil
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Event{}, fmt.Errorf("reading event stream: %w", err))
			return
		}
		flush()
	}
}
