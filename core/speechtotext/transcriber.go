package speechtotext

import (
	"context"

	"github.com/koscakluka/ema-voice/core/stream"
)

// Transcriber streams the transcript of a finished utterance as text deltas.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts ...TranscriptionOption) stream.Sequence
}
