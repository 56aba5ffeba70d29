package httputil

import (
	"net/http"

	"modelgate/internal/stream"
)

// SetSSEHeaders sets the standard headers for a Server-Sent Events response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// CopyBridge drains the bridge into w, flushing after every chunk, until
// the producer closes the channel or the write fails (client gone). The
// bridge is closed on return so the producer observes the departure on
// its next send.
func CopyBridge(w http.ResponseWriter, b *stream.Bridge) {
	defer b.Close()

	flusher, canFlush := w.(http.Flusher)
	for chunk := range b.Chunks() {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}
