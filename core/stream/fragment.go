// Package stream defines the fragment contract every upstream adapter
// (speech-to-text, LLM, text-to-speech) produces.
//
// A [Sequence] is lazy, finite and single-pass. Fragments arrive in upstream
// order and the last fragment is always exactly one [KindEnd] or [KindError].
// A consumer that stops ranging early abandons the sequence; adapters release
// their connections when that happens.
package stream

import (
	"iter"
	"strings"
)

type Kind string

const (
	KindTextDelta  Kind = "text_delta"
	KindAudioChunk Kind = "audio_chunk"
	KindEnd        Kind = "end"
	KindError      Kind = "error"
)

type Fragment struct {
	Kind Kind

	Text string

	Audio      []byte
	SampleRate int

	Err error
}

type Sequence = iter.Seq[Fragment]

func TextDelta(text string) Fragment {
	return Fragment{Kind: KindTextDelta, Text: text}
}

func AudioChunk(audio []byte, sampleRate int) Fragment {
	return Fragment{Kind: KindAudioChunk, Audio: audio, SampleRate: sampleRate}
}

func End() Fragment {
	return Fragment{Kind: KindEnd}
}

func Error(err error) Fragment {
	return Fragment{Kind: KindError, Err: err}
}

func (f Fragment) IsTerminal() bool {
	return f.Kind == KindEnd || f.Kind == KindError
}

// Failed returns a sequence consisting of a single error fragment.
func Failed(err error) Sequence {
	return func(yield func(Fragment) bool) {
		yield(Error(err))
	}
}

// CollectText drains seq and returns the concatenated text deltas. The error
// of a terminal error fragment is returned alongside whatever text arrived
// before it.
func CollectText(seq Sequence) (string, error) {
	var sb strings.Builder
	for fragment := range seq {
		switch fragment.Kind {
		case KindTextDelta:
			sb.WriteString(fragment.Text)
		case KindError:
			return sb.String(), fragment.Err
		case KindEnd:
			return sb.String(), nil
		}
	}
	return sb.String(), nil
}

// CollectAudio drains seq and returns all audio chunks joined together with
// the sample rate of the last chunk.
func CollectAudio(seq Sequence) ([]byte, int, error) {
	var (
		audio      []byte
		sampleRate int
	)
	for fragment := range seq {
		switch fragment.Kind {
		case KindAudioChunk:
			audio = append(audio, fragment.Audio...)
			sampleRate = fragment.SampleRate
		case KindError:
			return audio, sampleRate, fragment.Err
		case KindEnd:
			return audio, sampleRate, nil
		}
	}
	return audio, sampleRate, nil
}
