package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/stream"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"github.com/koscakluka/ema-voice/internal/server"
)

type echoTranscriber struct{}

func (echoTranscriber) Transcribe(_ context.Context, audio []byte, _ ...speechtotext.TranscriptionOption) stream.Sequence {
	return func(yield func(stream.Fragment) bool) {
		if !yield(stream.TextDelta(strings.TrimSpace(string(audio)))) {
			return
		}
		yield(stream.End())
	}
}

// flakyGenerator fails its first failures calls.
type flakyGenerator struct {
	failures int32
	calls    atomic.Int32
}

func (g *flakyGenerator) Generate(_ context.Context, messages []llms.Message, _ ...llms.GenerateOption) stream.Sequence {
	return func(yield func(stream.Fragment) bool) {
		if g.calls.Add(1) <= g.failures {
			yield(stream.Error(errors.New("upstream overloaded")))
			return
		}
		if !yield(stream.TextDelta("you said " + messages[len(messages)-1].Content)) {
			return
		}
		yield(stream.End())
	}
}

type toneSynthesizer struct{}

func (toneSynthesizer) Synthesize(_ context.Context, text iter.Seq[string], _ ...texttospeech.SynthesisOption) stream.Sequence {
	return func(yield func(stream.Fragment) bool) {
		for range text {
		}
		if !yield(stream.AudioChunk([]byte{1, 2, 3, 4}, 24000)) {
			return
		}
		yield(stream.End())
	}
}

func newChatServer(t *testing.T, generator llms.Generator) string {
	t.Helper()

	o := orchestration.NewOrchestrator(
		orchestration.WithSpeechToText(echoTranscriber{}),
		orchestration.WithLLM(generator),
		orchestration.WithTextToSpeech(toneSynthesizer{}),
		orchestration.WithGreeting("Welcome back"),
		orchestration.WithEvictionInterval(0),
	)
	srv := httptest.NewServer(server.New(o).Handler())
	t.Cleanup(func() {
		srv.Close()
		o.Close()
	})
	return srv.URL
}

func writeUtterance(t *testing.T, dir, name, text string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("failed to write utterance: %v", err)
	}
	return path
}

func runChatCmd(t *testing.T, args ...string) string {
	t.Helper()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"chat"}, args...))

	if err := cmd.Execute(); err != nil {
		t.Fatalf("chat command failed: %v\n%s", err, buf.String())
	}
	return buf.String()
}

func TestChatPlaysGreetingAndUtterances(t *testing.T) {
	url := newChatServer(t, &flakyGenerator{})
	dir := t.TempDir()
	saveDir := filepath.Join(dir, "audio")
	first := writeUtterance(t, dir, "first.wav", "good morning")
	second := writeUtterance(t, dir, "second.wav", "what time is it")

	out := runChatCmd(t, "--server", url, "--save-audio", saveDir, first, second)

	for _, want := range []string{
		"Welcome back",
		"good morning",
		"you said good morning",
		"what time is it",
		"you said what time is it",
		"[speaking]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}

	for _, name := range []string{"turn-001.pcm", "turn-002.pcm", "turn-003.pcm"} {
		audio, err := os.ReadFile(filepath.Join(saveDir, name))
		if err != nil {
			t.Fatalf("expected saved audio %s: %v", name, err)
		}
		if !bytes.Equal(audio, []byte{1, 2, 3, 4}) {
			t.Fatalf("unexpected audio in %s: %v", name, audio)
		}
	}
}

func TestChatRetriesFailedTurn(t *testing.T) {
	generator := &flakyGenerator{failures: 1}
	url := newChatServer(t, generator)
	path := writeUtterance(t, t.TempDir(), "hello.wav", "hello")

	out := runChatCmd(t, "--server", url, path)

	if !strings.Contains(out, "error: ") {
		t.Errorf("expected the failed attempt to be reported, got:\n%s", out)
	}
	if !strings.Contains(out, "you said hello") {
		t.Errorf("expected the retried turn to answer, got:\n%s", out)
	}
	if got := generator.calls.Load(); got != 2 {
		t.Fatalf("expected 2 generate calls, got %d", got)
	}
}

func TestChatSkipsTurnAfterRetries(t *testing.T) {
	generator := &flakyGenerator{failures: 100}
	url := newChatServer(t, generator)
	path := writeUtterance(t, t.TempDir(), "hello.wav", "hello")

	out := runChatCmd(t, "--server", url, "--retries", "0", path)

	if !strings.Contains(out, "error: ") {
		t.Errorf("expected the failure to be reported, got:\n%s", out)
	}
	if got := generator.calls.Load(); got != 1 {
		t.Fatalf("expected 1 generate call, got %d", got)
	}
}

func TestChatFailsWithoutServer(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"chat", "--server", "http://127.0.0.1:1"})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected chat to fail without a server")
	}
}
