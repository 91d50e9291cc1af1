package orchestration

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/stream"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type stubTranscriber struct {
	deltas []string
	err    error
	block  bool

	calls    atomic.Int32
	released atomic.Int32

	mu     sync.Mutex
	audios [][]byte
}

func (s *stubTranscriber) Transcribe(ctx context.Context, audio []byte, _ ...speechtotext.TranscriptionOption) stream.Sequence {
	s.calls.Add(1)
	s.mu.Lock()
	s.audios = append(s.audios, slices.Clone(audio))
	s.mu.Unlock()

	return func(yield func(stream.Fragment) bool) {
		defer s.released.Add(1)

		for _, delta := range s.deltas {
			if !yield(stream.TextDelta(delta)) {
				return
			}
		}
		if s.block {
			<-ctx.Done()
			return
		}
		if s.err != nil {
			yield(stream.Error(s.err))
			return
		}
		yield(stream.End())
	}
}

type stubGenerator struct {
	deltas []string
	err    error

	calls    atomic.Int32
	released atomic.Int32

	mu       sync.Mutex
	requests [][]llms.Message
	options  []llms.GenerateOptions
}

func (s *stubGenerator) Generate(ctx context.Context, messages []llms.Message, opts ...llms.GenerateOption) stream.Sequence {
	s.calls.Add(1)
	s.mu.Lock()
	s.requests = append(s.requests, slices.Clone(messages))
	s.options = append(s.options, llms.ApplyGenerateOptions(opts...))
	s.mu.Unlock()

	return func(yield func(stream.Fragment) bool) {
		defer s.released.Add(1)

		for _, delta := range s.deltas {
			if !yield(stream.TextDelta(delta)) {
				return
			}
		}
		if s.err != nil {
			yield(stream.Error(s.err))
			return
		}
		yield(stream.End())
	}
}

func (s *stubGenerator) lastRequest() []llms.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

// stubSynthesizer reads the whole reply before producing audio. The first
// blockCalls calls stop after one chunk and hold the stream open until they
// are cancelled.
type stubSynthesizer struct {
	chunks     int
	blockCalls int
	err        error

	calls    atomic.Int32
	released atomic.Int32

	mu    sync.Mutex
	texts []string
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text iter.Seq[string], _ ...texttospeech.SynthesisOption) stream.Sequence {
	call := int(s.calls.Add(1))

	return func(yield func(stream.Fragment) bool) {
		defer s.released.Add(1)

		var b strings.Builder
		for chunk := range text {
			b.WriteString(chunk)
		}
		s.mu.Lock()
		s.texts = append(s.texts, b.String())
		s.mu.Unlock()

		if ctx.Err() != nil {
			yield(stream.Error(ctx.Err()))
			return
		}
		if s.err != nil {
			yield(stream.Error(s.err))
			return
		}
		for i := range s.chunks {
			if !yield(stream.AudioChunk([]byte{byte(i)}, 24000)) {
				return
			}
			if call <= s.blockCalls {
				<-ctx.Done()
				return
			}
		}
		yield(stream.End())
	}
}

func newTestOrchestrator(t *testing.T, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(append([]OrchestratorOption{WithEvictionInterval(0)}, opts...)...)
	t.Cleanup(o.Close)
	return o
}

func newTestSession(t *testing.T, o *Orchestrator) string {
	t.Helper()
	id, err := o.CreateSession()
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return id
}

// startListening runs the greeting turn so the session accepts audio.
func startListening(t *testing.T, o *Orchestrator, id string) []events.Event {
	t.Helper()
	turn, err := o.StartConversation(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}
	return collectEvents(t, turn)
}

func collectEvents(t *testing.T, turn *Turn) []events.Event {
	t.Helper()

	received := make(chan []events.Event, 1)
	go func() {
		var collected []events.Event
		for event := range turn.Events() {
			collected = append(collected, event)
		}
		received <- collected
	}()

	select {
	case collected := <-received:
		return collected
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for turn %s to finish", turn.ID())
		return nil
	}
}

func waitForEvent(t *testing.T, ch <-chan events.Event, want string) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				t.Fatalf("event stream ended before %s", want)
			}
			if describe(event) == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func waitForTurn(t *testing.T, turn *Turn) {
	t.Helper()
	select {
	case <-turn.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for turn %s to settle", turn.ID())
	}
}

func describe(event events.Event) string {
	switch e := event.(type) {
	case events.StateChange:
		return fmt.Sprintf("state_change(%s)", e.State())
	case events.Transcript:
		return fmt.Sprintf("transcript(%s)", e.Text())
	case events.Response:
		return fmt.Sprintf("response(%s)", e.Text())
	case events.Audio:
		return fmt.Sprintf("audio(%d)", e.Index())
	case events.Error:
		return fmt.Sprintf("error(%s)", e.ErrorKind())
	default:
		return string(event.Kind())
	}
}

func describeAll(collected []events.Event) []string {
	described := make([]string, 0, len(collected))
	for _, event := range collected {
		described = append(described, describe(event))
	}
	return described
}

func textOf(collected []events.Event, kind events.Kind) string {
	var b strings.Builder
	for _, event := range collected {
		switch e := event.(type) {
		case events.Transcript:
			if kind == events.KindTranscript {
				b.WriteString(e.Text())
			}
		case events.Response:
			if kind == events.KindResponse {
				b.WriteString(e.Text())
			}
		}
	}
	return b.String()
}

func userMessage(content string) llms.Message {
	return llms.NewMessage(llms.RoleUser, content)
}

func assertEvents(t *testing.T, got []events.Event, want ...string) {
	t.Helper()
	described := describeAll(got)
	if !slices.Equal(described, want) {
		t.Fatalf("unexpected events\nwant: %v\n got: %v", want, described)
	}
}

func assertHistory(t *testing.T, history []llms.Message, want ...llms.Message) {
	t.Helper()
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(history), history)
	}
	for i := range want {
		if history[i].Role != want[i].Role || history[i].Content != want[i].Content {
			t.Fatalf("expected message %d to be %s %q, got %s %q", i, want[i].Role, want[i].Content, history[i].Role, history[i].Content)
		}
	}
}
