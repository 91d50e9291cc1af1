package stream

import (
	"errors"
	"strings"
	"testing"
)

func TestScanSSESplitsMessagesOnBlankLines(t *testing.T) {
	input := "event: transcript\ndata: {\"text\":\"hi\"}\n\n" +
		": keep-alive\n\n" +
		"data: first\ndata: second\n\n" +
		"data: [DONE]\n"

	var got []SSEMessage
	for msg, err := range ScanSSE(strings.NewReader(input)) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, msg)
	}

	want := []SSEMessage{
		{Event: "transcript", Data: `{"text":"hi"}`},
		{Data: "first\nsecond"},
		{Data: DoneMarker},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %#v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: expected %#v, got %#v", i, want[i], got[i])
		}
	}
}

func TestScanSSEHandlesCRLFAndLongLines(t *testing.T) {
	long := strings.Repeat("A", 200*1024)
	input := "data: " + long + "\r\n\r\n"

	count := 0
	for msg, err := range ScanSSE(strings.NewReader(input)) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Data != long {
			t.Fatalf("expected long data line to survive intact, got %d bytes", len(msg.Data))
		}
		count++
	}
	if count != 1 {
		t.Fatalf("expected one message, got %d", count)
	}
}

func TestScanSSEStopsWhenConsumerBreaks(t *testing.T) {
	input := "data: 1\n\ndata: 2\n\ndata: 3\n\n"

	seen := 0
	for range ScanSSE(strings.NewReader(input)) {
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("expected iteration to stop after one message, got %d", seen)
	}
}

func TestCollectTextConcatenatesDeltas(t *testing.T) {
	seq := func(yield func(Fragment) bool) {
		for _, fragment := range []Fragment{TextDelta("he"), TextDelta("llo"), End()} {
			if !yield(fragment) {
				return
			}
		}
	}

	text, err := CollectText(seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("expected %q, got %q", "hello", text)
	}
}

func TestCollectTextReturnsTerminalError(t *testing.T) {
	upstreamErr := errors.New("boom")
	seq := func(yield func(Fragment) bool) {
		if !yield(TextDelta("partial")) {
			return
		}
		yield(Error(upstreamErr))
	}

	text, err := CollectText(seq)
	if !errors.Is(err, upstreamErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if text != "partial" {
		t.Fatalf("expected partial text to be kept, got %q", text)
	}
}

func TestCollectAudioJoinsChunks(t *testing.T) {
	seq := func(yield func(Fragment) bool) {
		for _, fragment := range []Fragment{AudioChunk([]byte{1, 2}, 24000), AudioChunk([]byte{3}, 24000), End()} {
			if !yield(fragment) {
				return
			}
		}
	}

	audio, sampleRate, err := CollectAudio(seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != string([]byte{1, 2, 3}) || sampleRate != 24000 {
		t.Fatalf("unexpected audio %v at %d Hz", audio, sampleRate)
	}
}

func TestFailedYieldsSingleErrorFragment(t *testing.T) {
	var fragments []Fragment
	for fragment := range Failed(errors.New("no adapter")) {
		fragments = append(fragments, fragment)
	}
	if len(fragments) != 1 || fragments[0].Kind != KindError || !fragments[0].IsTerminal() {
		t.Fatalf("expected a single terminal error fragment, got %#v", fragments)
	}
}
