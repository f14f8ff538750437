package stream

import (
	"bytes"
	"sync"
)

// Buffer is an in-memory frame sink for callers that need the whole run,
// such as the MCP tool and tests.
type Buffer struct {
	mu     sync.Mutex
	frames [][]byte
}

func (b *Buffer) Send(frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, bytes.Clone(frame))
	return nil
}

// Bytes returns every frame concatenated in send order.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Join(b.frames, nil)
}

// Events decodes the buffered frames.
func (b *Buffer) Events() ([]Event, error) {
	var events []Event
	for ev, err := range ReadFrames(bytes.NewReader(b.Bytes())) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}
