package orchestration

import (
	"testing"
	"time"
)

func TestTextBufferStreamsChunksUntilComplete(t *testing.T) {
	buffer := newTextBuffer()

	received := make(chan []string, 1)
	go func() {
		var chunks []string
		for chunk := range buffer.Chunks {
			chunks = append(chunks, chunk)
		}
		received <- chunks
	}()

	buffer.AddChunk("Hello")
	buffer.AddChunk(" world")
	buffer.TextComplete()
	buffer.AddChunk("ignored")

	select {
	case chunks := <-received:
		if len(chunks) != 2 || chunks[0] != "Hello" || chunks[1] != " world" {
			t.Fatalf("unexpected chunks %q", chunks)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for consumer to finish")
	}

	if got := buffer.String(); got != "Hello world" {
		t.Fatalf("expected buffered text %q, got %q", "Hello world", got)
	}
}

func TestTextBufferClearReleasesBlockedConsumer(t *testing.T) {
	buffer := newTextBuffer()

	finished := make(chan struct{})
	go func() {
		for range buffer.Chunks {
		}
		close(finished)
	}()

	buffer.Clear()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected clear to release the consumer")
	}
}
