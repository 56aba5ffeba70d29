package chat

import (
	"io"

	"modelgate/internal/stream"
)

// ForwardTranslating reads the upstream Responses SSE body, reassembles
// frames across chunk boundaries and re-emits them in chat framing on
// the bridge. After response.completed the terminal pair is sent and
// nothing further is read, even if the upstream keeps sending. Read
// errors end the stream silently; no error frame is injected.
func ForwardTranslating(body io.ReadCloser, br *stream.Bridge, sess *Session) {
	defer body.Close()
	defer br.CloseSend()

	var re stream.Reassembler
	buf := make([]byte, stream.ReadBufSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range re.Push(buf[:n]) {
				switch ev.Type {
				case stream.EventOutputTextDelta:
					if ev.Delta == nil {
						continue
					}
					if !br.Send(sess.DeltaFrame(*ev.Delta)) {
						return
					}
				case stream.EventCompleted:
					final, done := sess.FinalFrames()
					br.Send(final)
					br.Send(done)
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}
