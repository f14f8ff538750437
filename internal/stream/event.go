// Package stream encodes research pipeline events as server-sent event frames
// and decodes them back on the client side.
package stream

import "github.com/kalambet/scour/internal/sentiment"

// Kind discriminates the variants of Event.
type Kind string

const (
	KindVerdict Kind = "verdict"
	KindText    Kind = "text"
	KindError   Kind = "error"
	KindDone    Kind = "done"
)

// Event is one logical pipeline event. Only the field matching Kind is set.
type Event struct {
	Kind    Kind
	Verdict sentiment.Verdict
	Text    string // fragment for KindText, message for KindError
}

func VerdictEvent(v sentiment.Verdict) Event { return Event{Kind: KindVerdict, Verdict: v} }
func TextEvent(s string) Event               { return Event{Kind: KindText, Text: s} }
func ErrorEvent(msg string) Event            { return Event{Kind: KindError, Text: msg} }
func DoneEvent() Event                       { return Event{Kind: KindDone} }
