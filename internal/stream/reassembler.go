package stream

import (
	"bytes"
	"encoding/json"
)

// Event type tags recognized in translating mode. Anything else is
// forwarded past without action.
const (
	EventOutputTextDelta = "response.output_text.delta"
	EventCompleted       = "response.completed"
)

// Event is one parsed SSE data payload, dispatched by its type tag.
// Delta is nil when the payload carries no delta text.
type Event struct {
	Type  string  `json:"type"`
	Delta *string `json:"delta"`
}

// Reassembler buffers raw upstream bytes and extracts complete SSE
// frames. Frames are delimited by a blank line and chunks may split a
// frame at any byte offset, so only the unterminated tail is retained
// between calls.
type Reassembler struct {
	buf []byte
}

// Push appends a chunk and returns the payload events of every frame the
// chunk completed. The "[DONE]" sentinel and unparsable payloads are
// swallowed.
func (r *Reassembler) Push(chunk []byte) []Event {
	r.buf = append(r.buf, chunk...)

	var events []Event
	for {
		idx := bytes.Index(r.buf, []byte("\n\n"))
		if idx == -1 {
			break
		}

		frame := r.buf[:idx]
		r.buf = r.buf[idx+2:]

		for _, line := range bytes.Split(frame, []byte("\n")) {
			line = bytes.TrimSuffix(line, []byte("\r"))
			payload, ok := bytes.CutPrefix(line, []byte("data: "))
			if !ok {
				continue
			}
			if bytes.Equal(payload, []byte("[DONE]")) {
				continue
			}
			var ev Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				continue
			}
			events = append(events, ev)
		}
	}
	return events
}
