package llms

import (
	"context"

	"github.com/koscakluka/ema-voice/core/stream"
)

// Generator streams a reply for the given conversation as text deltas.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts ...GenerateOption) stream.Sequence
}
