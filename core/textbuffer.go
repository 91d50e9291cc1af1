package orchestration

import (
	"strings"
	"sync"
)

// textBuffer hands reply text from the LLM stage to the synthesis stage. It
// has a single consumer; Chunks blocks until more text arrives, the text is
// complete or the buffer is cleared.
type textBuffer struct {
	mu       sync.Mutex
	chunks   []string
	consumed int
	complete bool
	cleared  bool

	updated chan struct{}
}

func newTextBuffer() *textBuffer {
	return &textBuffer{updated: make(chan struct{}, 1)}
}

func (b *textBuffer) AddChunk(chunk string) {
	b.mu.Lock()
	if b.complete || b.cleared {
		b.mu.Unlock()
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.mu.Unlock()
	b.signal()
}

func (b *textBuffer) TextComplete() {
	b.mu.Lock()
	b.complete = true
	b.mu.Unlock()
	b.signal()
}

// Clear drops pending text and releases a blocked consumer.
func (b *textBuffer) Clear() {
	b.mu.Lock()
	b.cleared = true
	b.chunks = nil
	b.consumed = 0
	b.mu.Unlock()
	b.signal()
}

func (b *textBuffer) Chunks(yield func(string) bool) {
	for {
		chunk, ok, wait := b.next()
		if ok {
			if !yield(chunk) {
				return
			}
			continue
		}
		if !wait {
			return
		}
		<-b.updated
	}
}

func (b *textBuffer) next() (chunk string, ok bool, wait bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.cleared:
		return "", false, false
	case b.consumed < len(b.chunks):
		chunk = b.chunks[b.consumed]
		b.consumed++
		return chunk, true, false
	case b.complete:
		return "", false, false
	}
	return "", false, true
}

func (b *textBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return strings.Join(b.chunks, "")
}

func (b *textBuffer) signal() {
	select {
	case b.updated <- struct{}{}:
	default:
	}
}
