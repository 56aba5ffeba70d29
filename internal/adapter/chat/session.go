package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the per-request streaming correlation state stamped into
// every translated frame. id and created are fixed at creation and the
// assistant role tag is emitted exactly once. A session is owned by one
// forwarding goroutine, so no locking is needed.
type Session struct {
	id       string
	created  int64
	model    string
	sentRole bool
}

func NewSession(model string) *Session {
	return &Session{
		id:      "chatcmpl-" + uuid.NewString(),
		created: time.Now().Unix(),
		model:   model,
	}
}

// DeltaFrame renders one content delta as an SSE frame in chat framing.
// The first frame of the session additionally carries role=assistant.
func (s *Session) DeltaFrame(delta string) []byte {
	d := Delta{Content: delta}
	if !s.sentRole {
		d.Role = "assistant"
		s.sentRole = true
	}
	return sseFrame(StreamChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []StreamChoice{{Index: 0, Delta: d}},
	})
}

// FinalFrames renders the terminal pair: an empty delta carrying
// finish_reason=stop, then the [DONE] sentinel.
func (s *Session) FinalFrames() ([]byte, []byte) {
	stop := "stop"
	final := sseFrame(StreamChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []StreamChoice{{Index: 0, FinishReason: &stop}},
	})
	return final, []byte("data: [DONE]\n\n")
}

func sseFrame(chunk StreamChunk) []byte {
	data, _ := json.Marshal(chunk)
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}
