package texttospeech

import (
	"context"
	"iter"

	"github.com/koscakluka/ema-voice/core/stream"
)

// Synthesizer turns incrementally arriving text into audio chunks. The text
// sequence ends when the reply is complete. Implementations start producing
// audio before the text is complete.
type Synthesizer interface {
	Synthesize(ctx context.Context, text iter.Seq[string], opts ...SynthesisOption) stream.Sequence
}
