package orchestration

import (
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

const (
	DefaultIdleTimeout         = 30 * time.Minute
	DefaultEvictionInterval    = time.Minute
	DefaultGreetingInstruction = "The user has just joined the conversation. Greet them briefly and ask how you can help."
)

type OrchestratorOption func(*Orchestrator)

// WithSpeechToText sets the transcriber used by the ASR stage. opts apply to
// every transcription and precede per-call options.
func WithSpeechToText(client speechtotext.Transcriber, opts ...speechtotext.TranscriptionOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText = client
		o.transcriptionOpts = opts
	}
}

func WithLLM(client llms.Generator, opts ...llms.GenerateOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm = client
		o.generateOpts = opts
	}
}

func WithTextToSpeech(client texttospeech.Synthesizer, opts ...texttospeech.SynthesisOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.textToSpeech = client
		o.synthesisOpts = opts
	}
}

// WithSystemPrompt sets the instructions sent with every generation.
func WithSystemPrompt(prompt string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

// WithGreeting makes StartConversation speak greeting verbatim instead of
// asking the LLM for one.
func WithGreeting(greeting string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.greeting = greeting
	}
}

// WithGreetingInstruction replaces the prompt used to have the LLM speak
// first.
func WithGreetingInstruction(instruction string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.greetingInstruction = instruction
	}
}

// WithKeepListening controls whether a finished reply returns the session to
// listening (the default) or to idle.
func WithKeepListening(keepListening bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.keepListening = keepListening
	}
}

// WithIdleTimeout sets how long a session may go without activity before it
// is evicted. Zero keeps sessions until they are ended explicitly.
func WithIdleTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.idleTimeout = timeout
	}
}

// WithEvictionInterval sets how often idle sessions are swept. Zero disables
// the background sweep.
func WithEvictionInterval(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.evictionInterval = interval
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}
