package main

import (
	"strings"
	"testing"

	"github.com/koscakluka/ema-voice/core/llms/openai"
	deepgramstt "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	zhipustt "github.com/koscakluka/ema-voice/core/speechtotext/zhipu"
	deepgramtts "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	zhiputts "github.com/koscakluka/ema-voice/core/texttospeech/zhipu"
	"github.com/koscakluka/ema-voice/internal/config"
)

func parseConfig(t *testing.T, data string) *config.Config {
	t.Helper()

	cfg, err := config.Parse([]byte(data))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func TestAdaptersFollowProviders(t *testing.T) {
	tests := []struct {
		name   string
		config string
		check  func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "zhipu",
			config: `
llm: {api_key: llm-key}
zhipu: {api_key: zhipu-key}
`,
			check: func(t *testing.T, cfg *config.Config) {
				transcriber, err := newTranscriber(cfg)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, ok := transcriber.(*zhipustt.Client); !ok {
					t.Fatalf("expected zhipu transcriber, got %T", transcriber)
				}
				synthesizer, err := newSynthesizer(cfg)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, ok := synthesizer.(*zhiputts.Client); !ok {
					t.Fatalf("expected zhipu synthesizer, got %T", synthesizer)
				}
			},
		},
		{
			name: "deepgram",
			config: `
llm: {provider: groq}
groq: {api_key: groq-key}
asr: {provider: deepgram, language: de}
tts: {provider: deepgram, voice: aura-2-luna-en}
deepgram: {api_key: deepgram-key}
`,
			check: func(t *testing.T, cfg *config.Config) {
				transcriber, err := newTranscriber(cfg)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, ok := transcriber.(*deepgramstt.TranscriptionClient); !ok {
					t.Fatalf("expected deepgram transcriber, got %T", transcriber)
				}
				synthesizer, err := newSynthesizer(cfg)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, ok := synthesizer.(*deepgramtts.TextToSpeechClient); !ok {
					t.Fatalf("expected deepgram synthesizer, got %T", synthesizer)
				}
				if _, ok := newGenerator(cfg).(*openai.Client); !ok {
					t.Fatalf("expected an OpenAI-compatible generator")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, parseConfig(t, tt.config))
		})
	}
}

func TestUnknownDeepgramVoiceIsRejected(t *testing.T) {
	cfg := parseConfig(t, `
llm: {api_key: llm-key}
zhipu: {api_key: zhipu-key}
tts: {provider: deepgram, voice: robot}
deepgram: {api_key: deepgram-key}
`)

	_, err := orchestratorOptions(cfg)
	if err == nil || !strings.Contains(err.Error(), "invalid voice") {
		t.Fatalf("expected invalid voice error, got %v", err)
	}
}

func TestOrchestratorOptions(t *testing.T) {
	cfg := parseConfig(t, `
llm: {api_key: llm-key}
zhipu: {api_key: zhipu-key}
asr: {ffmpeg_path: /usr/bin/ffmpeg, language: zh}
`)

	opts, err := orchestratorOptions(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts) == 0 {
		t.Fatalf("expected orchestrator options")
	}
}
