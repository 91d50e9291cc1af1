package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/llms/groq"
	"github.com/koscakluka/ema-voice/core/llms/openai"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	deepgramstt "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	zhipustt "github.com/koscakluka/ema-voice/core/speechtotext/zhipu"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	deepgramtts "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	zhiputts "github.com/koscakluka/ema-voice/core/texttospeech/zhipu"
	"github.com/koscakluka/ema-voice/internal/config"
	"github.com/koscakluka/ema-voice/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation HTTP server",
		Long:  "Serves the conversation API over HTTP, server-sent events and websockets until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "ema-voice.yaml", "path to config file (optional)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	masked := cfg.Masked()
	attrs := make([]any, 0, 2*len(masked))
	for key, value := range masked {
		attrs = append(attrs, key, value)
	}
	slog.Info("configuration loaded", attrs...)

	opts, err := orchestratorOptions(cfg)
	if err != nil {
		return err
	}
	orchestrator := orchestration.NewOrchestrator(opts...)
	srv := server.New(orchestrator, server.WithVersion(Version))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx, cfg.Server.Addr, cmd.OutOrStdout())
	})
	g.Go(func() error {
		<-ctx.Done()
		orchestrator.Close()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ema-voice stopped")
	return nil
}

// orchestratorOptions builds the provider adapters the configuration selects.
func orchestratorOptions(cfg *config.Config) ([]orchestration.OrchestratorOption, error) {
	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return nil, err
	}
	synthesizer, err := newSynthesizer(cfg)
	if err != nil {
		return nil, err
	}

	var synthesisOpts []texttospeech.SynthesisOption
	if cfg.TTS.Provider == config.ProviderZhipu {
		synthesisOpts = append(synthesisOpts,
			texttospeech.WithVoice(cfg.TTS.Voice),
			texttospeech.WithSpeed(*cfg.TTS.Speed),
			texttospeech.WithVolume(*cfg.TTS.Volume),
		)
	}
	var transcriptionOpts []speechtotext.TranscriptionOption
	if cfg.ASR.Language != "" {
		transcriptionOpts = append(transcriptionOpts, speechtotext.WithLanguage(cfg.ASR.Language))
	}

	return []orchestration.OrchestratorOption{
		orchestration.WithSpeechToText(transcriber, transcriptionOpts...),
		orchestration.WithLLM(newGenerator(cfg), llms.WithTemperature(*cfg.LLM.Temperature)),
		orchestration.WithTextToSpeech(synthesizer, synthesisOpts...),
		orchestration.WithSystemPrompt(cfg.Conversation.SystemPrompt),
		orchestration.WithGreeting(cfg.Conversation.Greeting),
		orchestration.WithKeepListening(*cfg.Conversation.KeepListening),
		orchestration.WithIdleTimeout(cfg.Server.IdleTimeout),
		orchestration.WithEvictionInterval(cfg.Server.EvictionInterval),
	}, nil
}

func newGenerator(cfg *config.Config) llms.Generator {
	var opts []openai.ClientOption
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	if cfg.LLM.Model != "" {
		opts = append(opts, openai.WithModel(cfg.LLM.Model))
	}
	if cfg.LLM.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxTokens(cfg.LLM.MaxTokens))
	}

	if cfg.LLM.Provider == config.ProviderGroq {
		return groq.NewClient(cfg.LLM.APIKey, opts...)
	}
	return openai.NewClient(cfg.LLM.APIKey, opts...)
}

func newTranscriber(cfg *config.Config) (speechtotext.Transcriber, error) {
	switch cfg.ASR.Provider {
	case config.ProviderZhipu:
		opts := []zhipustt.ClientOption{
			zhipustt.WithBaseURL(cfg.Zhipu.BaseURL),
			zhipustt.WithModel(cfg.ASR.Model),
		}
		if cfg.ASR.FFmpegPath != "" {
			opts = append(opts, zhipustt.WithTranscoder(&audio.FFmpeg{Path: cfg.ASR.FFmpegPath}))
		}
		return zhipustt.NewClient(cfg.Zhipu.APIKey, opts...), nil
	case config.ProviderDeepgram:
		var opts []deepgramstt.ClientOption
		if cfg.Deepgram.BaseURL != "" {
			opts = append(opts, deepgramstt.WithBaseURL(cfg.Deepgram.BaseURL))
		}
		if cfg.ASR.Model != "" {
			opts = append(opts, deepgramstt.WithModel(cfg.ASR.Model))
		}
		if cfg.ASR.Language != "" {
			opts = append(opts, deepgramstt.WithLanguage(cfg.ASR.Language))
		}
		return deepgramstt.NewTranscriptionClient(cfg.Deepgram.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported asr provider %q", cfg.ASR.Provider)
	}
}

func newSynthesizer(cfg *config.Config) (texttospeech.Synthesizer, error) {
	switch cfg.TTS.Provider {
	case config.ProviderZhipu:
		return zhiputts.NewClient(cfg.Zhipu.APIKey,
			zhiputts.WithBaseURL(cfg.Zhipu.BaseURL),
			zhiputts.WithModel(cfg.TTS.Model),
			zhiputts.WithVoice(cfg.TTS.Voice),
			zhiputts.WithSpeed(*cfg.TTS.Speed),
			zhiputts.WithVolume(*cfg.TTS.Volume),
		), nil
	case config.ProviderDeepgram:
		var opts []deepgramtts.ClientOption
		if cfg.Deepgram.BaseURL != "" {
			opts = append(opts, deepgramtts.WithBaseURL(cfg.Deepgram.BaseURL))
		}
		if cfg.TTS.Voice != "" {
			opts = append(opts, deepgramtts.WithVoice(deepgramtts.Voice(cfg.TTS.Voice)))
		}
		client, err := deepgramtts.NewTextToSpeechClient(cfg.Deepgram.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("deepgram tts: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported tts provider %q", cfg.TTS.Provider)
	}
}
