package stream

import "io"

// ReadBufSize is the upstream chunk read granularity.
const ReadBufSize = 32 * 1024

// Forward copies raw upstream bytes onto the bridge chunk-for-chunk,
// without SSE parsing. Used when the caller's framing already matches
// the provider's. Read errors end the loop silently; no error frame is
// injected and the stream simply ends.
func Forward(body io.ReadCloser, b *Bridge) {
	defer body.Close()
	defer b.CloseSend()

	buf := make([]byte, ReadBufSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !b.Send(chunk) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
