package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Format selects the frame payload shape.
type Format string

const (
	// FormatLegacy sends verdicts as bare objects and text as bare JSON
	// strings. Existing browser clients depend on it.
	FormatLegacy Format = "legacy"
	// FormatTyped wraps every payload in an object with a "type" field.
	FormatTyped Format = "typed"
)

// ParseFormat maps a user-supplied name to a Format. The empty string
// selects FormatLegacy.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatLegacy):
		return FormatLegacy, nil
	case string(FormatTyped):
		return FormatTyped, nil
	default:
		return "", fmt.Errorf("unknown stream format %q (want legacy or typed)", s)
	}
}

const donePayload = "[DONE]"

// Encoder turns events into SSE frames. It holds no state beyond its format
// and is safe for concurrent use.
type Encoder struct {
	format Format
}

// NewEncoder returns an Encoder for f. Unknown formats encode as legacy.
func NewEncoder(f Format) *Encoder {
	if f != FormatTyped {
		f = FormatLegacy
	}
	return &Encoder{format: f}
}

// Encode returns the wire bytes for ev. An error event encodes to the error
// frame immediately followed by the done frame.
func (e *Encoder) Encode(ev Event) []byte {
	switch ev.Kind {
	case KindVerdict:
		if e.format == FormatTyped {
			return frame(typedVerdict{Type: KindVerdict, Score: ev.Verdict.Score, Label: ev.Verdict.Label, Confidence: ev.Verdict.Confidence})
		}
		return frame(ev.Verdict)
	case KindText:
		if e.format == FormatTyped {
			return frame(typedText{Type: KindText, Text: ev.Text})
		}
		return frame(ev.Text)
	case KindDone:
		return e.done()
	case KindError:
		var b []byte
		if e.format == FormatTyped {
			b = frame(typedError{Type: KindError, Message: ev.Text})
		} else {
			b = frame("Error: " + ev.Text)
		}
		return append(b, e.done()...)
	default:
		return e.Encode(ErrorEvent(fmt.Sprintf("unknown event kind %q", ev.Kind)))
	}
}

func (e *Encoder) done() []byte {
	if e.format == FormatTyped {
		return frame(typedDone{Type: KindDone})
	}
	return []byte("data: " + donePayload + "\n\n")
}

type typedVerdict struct {
	Type       Kind    `json:"type"`
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type typedText struct {
	Type Kind   `json:"type"`
	Text string `json:"text"`
}

type typedError struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

type typedDone struct {
	Type Kind `json:"type"`
}

// frame marshals v without HTML escaping so fragments reach the client as
// the model produced them.
func frame(v any) []byte {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Only unsupported values such as NaN can fail here.
		buf.Reset()
		buf.WriteString(`data: "Error: unencodable event"`)
		buf.WriteByte('\n')
	}
	// json.Encoder terminates with one newline; SSE needs a blank line.
	buf.WriteByte('\n')
	return buf.Bytes()
}
