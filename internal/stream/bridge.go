package stream

import "sync"

// Bridge channel capacities. Translating mode emits smaller frames at a
// higher rate, so it gets more headroom.
const (
	PassthroughCapacity = 16
	TranslatingCapacity = 64
)

// Bridge is the bounded channel pair connecting a detached upstream
// forwarding goroutine to the outbound response body. A stalled consumer
// blocks the producer; a consumer that has gone away is observed
// structurally as a failed send.
type Bridge struct {
	ch       chan []byte
	done     chan struct{}
	sendOnce sync.Once
	doneOnce sync.Once
}

func NewBridge(capacity int) *Bridge {
	return &Bridge{
		ch:   make(chan []byte, capacity),
		done: make(chan struct{}),
	}
}

// Send blocks until the consumer accepts the chunk or has gone away.
// It reports whether the chunk was accepted.
func (b *Bridge) Send(p []byte) bool {
	select {
	case b.ch <- p:
		return true
	case <-b.done:
		return false
	}
}

// CloseSend signals the consumer that no further chunks will arrive.
// Producer side only.
func (b *Bridge) CloseSend() {
	b.sendOnce.Do(func() { close(b.ch) })
}

// Chunks is the consumer side of the bridge.
func (b *Bridge) Chunks() <-chan []byte { return b.ch }

// Close marks the consumer as gone. The producer's next Send fails,
// which halts the upstream read loop.
func (b *Bridge) Close() {
	b.doneOnce.Do(func() { close(b.done) })
}
