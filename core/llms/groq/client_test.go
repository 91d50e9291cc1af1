package groq

import (
	"testing"

	"github.com/koscakluka/ema-voice/core/llms/openai"
)

func TestNewClientUsesGroqDefaults(t *testing.T) {
	if got := NewClient("key").Model(); got != DefaultModel {
		t.Fatalf("expected default model %q, got %q", DefaultModel, got)
	}
}

func TestNewClientLetsCallerOverrideModel(t *testing.T) {
	if got := NewClient("key", openai.WithModel("mixtral")).Model(); got != "mixtral" {
		t.Fatalf("expected overridden model, got %q", got)
	}
}
