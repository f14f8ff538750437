package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/scour/internal/sentiment"
)

func TestEncodeLegacy(t *testing.T) {
	enc := NewEncoder(FormatLegacy)

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"verdict", VerdictEvent(sentiment.Verdict{Score: 72.5, Label: "Positive", Confidence: 0.85}), `data: {"score":72.5,"label":"Positive","confidence":0.85}` + "\n\n"},
		{"text", TextEvent("hello"), `data: "hello"` + "\n\n"},
		{"text escapes", TextEvent("say \"hi\"\nnow"), `data: "say \"hi\"\nnow"` + "\n\n"},
		{"html kept", TextEvent("<b>&</b>"), `data: "<b>&</b>"` + "\n\n"},
		{"done", DoneEvent(), "data: [DONE]\n\n"},
		{"error then done", ErrorEvent("boom"), "data: \"Error: boom\"\n\ndata: [DONE]\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(enc.Encode(tt.ev)))
		})
	}
}

func TestEncodeTyped(t *testing.T) {
	enc := NewEncoder(FormatTyped)

	assert.Equal(t, `data: {"type":"verdict","score":50,"label":"Neutral","confidence":0}`+"\n\n",
		string(enc.Encode(VerdictEvent(sentiment.Neutral(0)))))
	assert.Equal(t, `data: {"type":"text","text":"a\"b"}`+"\n\n", string(enc.Encode(TextEvent(`a"b`))))
	assert.Equal(t, `data: {"type":"done"}`+"\n\n", string(enc.Encode(DoneEvent())))
	assert.Equal(t, `data: {"type":"error","message":"x"}`+"\n\n"+`data: {"type":"done"}`+"\n\n",
		string(enc.Encode(ErrorEvent("x"))))
}

func TestNewEncoderDefaultsToLegacy(t *testing.T) {
	legacy := NewEncoder(FormatLegacy).Encode(TextEvent("hi"))
	assert.Equal(t, legacy, NewEncoder("").Encode(TextEvent("hi")))
	assert.Equal(t, legacy, NewEncoder("bogus").Encode(TextEvent("hi")))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, f)

	f, err = ParseFormat(" Typed ")
	require.NoError(t, err)
	assert.Equal(t, FormatTyped, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestRoundTripQuoteAndNewline(t *testing.T) {
	original := "He said \"it's fine\"\nthen left.\n\n- bullet [1]"
	for _, f := range []Format{FormatLegacy, FormatTyped} {
		t.Run(string(f), func(t *testing.T) {
			frame := NewEncoder(f).Encode(TextEvent(original))
			var got []Event
			for ev, err := range ReadFrames(strings.NewReader(string(frame))) {
				require.NoError(t, err)
				got = append(got, ev)
			}
			require.Len(t, got, 1)
			assert.Equal(t, KindText, got[0].Kind)
			assert.Equal(t, original, got[0].Text)
		})
	}
}

func TestDecodeLegacyContract(t *testing.T) {
	ev, err := Decode(`{"score":20,"label":"Negative","confidence":0.4}`)
	require.NoError(t, err)
	assert.Equal(t, KindVerdict, ev.Kind)
	assert.Equal(t, sentiment.Verdict{Score: 20, Label: "Negative", Confidence: 0.4}, ev.Verdict)

	ev, err = Decode(`"Error: No relevant discussions found on Reddit."`)
	require.NoError(t, err)
	assert.Equal(t, KindText, ev.Kind)

	ev, err = Decode("[DONE]")
	require.NoError(t, err)
	assert.Equal(t, KindDone, ev.Kind)

	_, err = Decode(`{"foo":1}`)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = Decode(`not json`)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeTyped(t *testing.T) {
	ev, err := Decode(`{"type":"error","message":"bad"}`)
	require.NoError(t, err)
	assert.Equal(t, ErrorEvent("bad"), ev)

	// A typed text event that looks like a verdict stays text.
	ev, err = Decode(`{"type":"text","text":"{\"score\":1,\"label\":\"x\"}"}`)
	require.NoError(t, err)
	assert.Equal(t, KindText, ev.Kind)

	_, err = Decode(`{"type":"bogus"}`)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReadFramesFullRun(t *testing.T) {
	enc := NewEncoder(FormatLegacy)
	var body strings.Builder
	body.Write(enc.Encode(VerdictEvent(sentiment.Verdict{Score: 80, Label: "Positive", Confidence: 0.7})))
	body.WriteString(": keep-alive comment\n\n")
	body.Write(enc.Encode(TextEvent("part one ")))
	body.Write(enc.Encode(TextEvent("part two")))
	body.Write(enc.Encode(DoneEvent()))

	var kinds []Kind
	var text strings.Builder
	for ev, err := range ReadFrames(strings.NewReader(body.String())) {
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
		if ev.Kind == KindText {
			text.WriteString(ev.Text)
		}
	}
	assert.Equal(t, []Kind{KindVerdict, KindText, KindText, KindDone}, kinds)
	assert.Equal(t, "part one part two", text.String())
}

func TestReadFramesStopsEarly(t *testing.T) {
	enc := NewEncoder(FormatLegacy)
	body := string(enc.Encode(TextEvent("a"))) + string(enc.Encode(TextEvent("b")))

	n := 0
	for range ReadFrames(strings.NewReader(body)) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestBufferEvents(t *testing.T) {
	var buf Buffer
	enc := NewEncoder(FormatTyped)
	require.NoError(t, buf.Send(enc.Encode(TextEvent("x"))))
	require.NoError(t, buf.Send(enc.Encode(DoneEvent())))

	events, err := buf.Events()
	require.NoError(t, err)
	assert.Equal(t, []Event{TextEvent("x"), DoneEvent()}, events)
}
