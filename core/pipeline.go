package orchestration

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/stream"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	errTurnCancelled    = errors.New("turn cancelled")
	errEmptyTranscript  = errors.New("no speech recognized")
	errEmptyReply       = errors.New("empty reply")
	errNoAudio          = errors.New("no audio synthesized")
	errIncompleteStream = errors.New("stream ended without a terminal fragment")
	errNoTranscriber    = errors.New("speech-to-text client not configured")
	errNoGenerator      = errors.New("llm client not configured")
	errNoSynthesizer    = errors.New("text-to-speech client not configured")
)

type turnInput struct {
	audio             []byte
	transcriptionOpts []speechtotext.TranscriptionOption
	greeting          bool
}

// turnRun drives one turn through the stages. It is the only producer of the
// turn's events.
type turnRun struct {
	orchestrator *Orchestrator
	session      *Session
	turn         *Turn
	input        turnInput

	stages sync.WaitGroup
}

type stageFragment struct {
	seq      int
	fragment stream.Fragment
}

func (r *turnRun) run() {
	ctx, span := tracer.Start(r.turn.ctx, "conversation turn", trace.WithAttributes(
		attribute.String("session.id", r.session.ID),
		attribute.String("turn.id", r.turn.id),
		attribute.Bool("turn.greeting", r.input.greeting),
	))
	stageCtx, cancelStages := context.WithCancel(ctx)
	defer func() {
		cancelStages()
		r.stages.Wait()

		r.turn.markCancelled()
		if r.turn.Outcome() == OutcomeCancelled {
			// Interrupts and stops unbind the turn themselves. A turn that
			// is still bound was abandoned by its consumer.
			if _, err := r.session.machine.TransitionTurn(r.turn.id, TriggerUserInterrupt); err == nil {
				logger.Debug("abandoned turn reverted session to listening", "turn.id", r.turn.id)
			}
		}
		r.session.clearActiveTurn(r.turn)

		span.SetAttributes(attribute.String("turn.outcome", string(r.turn.Outcome())))
		span.End()
		r.turn.finish()
	}()

	reply, err := r.execute(stageCtx)
	switch {
	case r.turn.IsCancelled() || errors.Is(err, errTurnCancelled) || ctx.Err() != nil:
		r.turn.markCancelled()
	case err != nil:
		r.fail(span, err)
	default:
		r.complete(reply)
	}
}

func (r *turnRun) execute(ctx context.Context) (string, error) {
	if !r.emit(events.NewStateChange(string(StateProcessing))) {
		return "", errTurnCancelled
	}

	messages := r.session.History()
	if !r.input.greeting {
		transcript, err := r.transcribe(ctx)
		if err != nil {
			return "", err
		}

		userMessage := llms.NewMessage(llms.RoleUser, transcript)
		if !r.turn.commit(OutcomePending, nil, func() { r.session.appendMessage(userMessage) }) {
			return "", errTurnCancelled
		}
		messages = append(messages, userMessage)
	}

	return r.respond(ctx, messages)
}

func (r *turnRun) transcribe(ctx context.Context) (string, error) {
	r.turn.enterStage(StageASR)

	seq := stream.Failed(errNoTranscriber)
	if transcriber := r.orchestrator.speechToText; transcriber != nil {
		opts := append(slices.Clone(r.orchestrator.transcriptionOpts), r.input.transcriptionOpts...)
		seq = transcriber.Transcribe(ctx, r.input.audio, opts...)
	}

	var transcript strings.Builder
	for item := range r.startStage(ctx, StageASR, seq) {
		if !r.turn.accept(StageASR, item.seq) {
			return "", errTurnCancelled
		}

		switch item.fragment.Kind {
		case stream.KindTextDelta:
			if item.fragment.Text == "" {
				continue
			}
			transcript.WriteString(item.fragment.Text)
			if !r.emit(events.NewTranscript(item.fragment.Text)) {
				return "", errTurnCancelled
			}
		case stream.KindEnd:
			if strings.TrimSpace(transcript.String()) == "" {
				return "", &StageError{Stage: StageASR, Err: errEmptyTranscript}
			}
			return transcript.String(), nil
		case stream.KindError:
			return "", &StageError{Stage: StageASR, Err: item.fragment.Err}
		}
	}

	if ctx.Err() != nil {
		return "", errTurnCancelled
	}
	return "", &StageError{Stage: StageASR, Err: errIncompleteStream}
}

// respond streams the reply to the client while it is being synthesized.
// LLM and TTS fragments are forwarded in the order they arrive.
func (r *turnRun) respond(ctx context.Context, messages []llms.Message) (string, error) {
	r.turn.enterStage(StageLLM)

	text := newTextBuffer()
	releaseClear := onCancel(ctx, text.Clear)

	replies := r.startStage(ctx, StageLLM, r.replySequence(ctx, messages))

	speech := stream.Failed(errNoSynthesizer)
	if synthesizer := r.orchestrator.textToSpeech; synthesizer != nil {
		speech = synthesizer.Synthesize(ctx, text.Chunks, r.orchestrator.synthesisOpts...)
	}
	audio := r.startStage(ctx, StageTTS, speech)

	var reply strings.Builder
	replyDone, audioDone, speaking := false, false, false
	for !replyDone || !audioDone {
		select {
		case <-ctx.Done():
			return "", errTurnCancelled

		case item, ok := <-replies:
			if !ok {
				return "", r.interrupted(ctx, StageLLM)
			}
			if !r.turn.accept(StageLLM, item.seq) {
				return "", errTurnCancelled
			}

			switch item.fragment.Kind {
			case stream.KindTextDelta:
				if item.fragment.Text == "" {
					continue
				}
				reply.WriteString(item.fragment.Text)
				text.AddChunk(item.fragment.Text)
				if !r.emit(events.NewResponse(item.fragment.Text)) {
					return "", errTurnCancelled
				}
			case stream.KindEnd:
				replyDone, replies = true, nil
				if strings.TrimSpace(reply.String()) == "" {
					return "", &StageError{Stage: StageLLM, Err: errEmptyReply}
				}
				text.TextComplete()
			case stream.KindError:
				return "", &StageError{Stage: StageLLM, Err: item.fragment.Err}
			}

		case item, ok := <-audio:
			if !ok {
				return "", r.interrupted(ctx, StageTTS)
			}
			if !r.turn.accept(StageTTS, item.seq) {
				return "", errTurnCancelled
			}

			switch item.fragment.Kind {
			case stream.KindAudioChunk:
				if len(item.fragment.Audio) == 0 {
					continue
				}
				if !speaking {
					state, err := r.session.machine.TransitionTurn(r.turn.id, TriggerFirstAudio)
					if err != nil {
						return "", errTurnCancelled
					}
					speaking = true
					r.turn.enterStage(StageTTS)
					if !r.emit(events.NewStateChange(string(state))) {
						return "", errTurnCancelled
					}
				}
				event := events.NewAudio(item.fragment.Audio, item.fragment.SampleRate, r.turn.nextAudioIndex())
				if !r.emit(event) {
					return "", errTurnCancelled
				}
			case stream.KindEnd:
				audioDone, audio = true, nil
				if !speaking {
					return "", &StageError{Stage: StageTTS, Err: errNoAudio}
				}
			case stream.KindError:
				return "", &StageError{Stage: StageTTS, Err: item.fragment.Err}
			}
		}
	}

	releaseClear()
	return reply.String(), nil
}

func (r *turnRun) replySequence(ctx context.Context, messages []llms.Message) stream.Sequence {
	o := r.orchestrator
	if r.input.greeting && o.greeting != "" {
		return staticReply(o.greeting)
	}
	if o.llm == nil {
		return stream.Failed(errNoGenerator)
	}

	if r.input.greeting {
		messages = append(slices.Clone(messages), llms.NewMessage(llms.RoleUser, o.greetingInstruction))
	}
	opts := slices.Clone(o.generateOpts)
	if o.systemPrompt != "" {
		opts = append(opts, llms.WithInstructions(o.systemPrompt))
	}
	return o.llm.Generate(ctx, messages, opts...)
}

func (r *turnRun) complete(reply string) {
	assistantMessage := llms.NewMessage(llms.RoleAssistant, reply)
	if !r.turn.commit(OutcomeCompleted, nil, func() { r.session.appendMessage(assistantMessage) }) {
		return
	}

	state, err := r.session.machine.TransitionTurn(r.turn.id, TriggerSpeakingComplete)
	if err != nil {
		logger.Debug("turn completed after it was superseded", "turn.id", r.turn.id, "error", err)
		return
	}
	if !r.emit(events.NewStateChange(string(state))) {
		return
	}
	r.emit(events.NewDone())
}

func (r *turnRun) fail(span trace.Span, err error) {
	if !r.turn.commit(OutcomeFailed, err, nil) {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Warn("turn failed", "session.id", r.session.ID, "turn.id", r.turn.id, "error", err)

	if _, transitionErr := r.session.machine.TransitionTurn(r.turn.id, TriggerError); transitionErr != nil {
		logger.Debug("failed turn no longer owns the session", "turn.id", r.turn.id, "error", transitionErr)
	}
	r.emit(events.NewError(ErrorKindOf(err), err.Error()))
}

// emit delivers event and counts it as session activity.
func (r *turnRun) emit(event events.Event) bool {
	if !r.turn.emit(event) {
		return false
	}
	r.session.touch()
	return true
}

func (r *turnRun) interrupted(ctx context.Context, stage Stage) error {
	if ctx.Err() != nil {
		return errTurnCancelled
	}
	return &StageError{Stage: stage, Err: errIncompleteStream}
}

// startStage consumes seq on its own goroutine and forwards its fragments
// numbered from 1. The stage stops at the first terminal fragment or when ctx
// ends, which abandons seq and releases its connection.
func (r *turnRun) startStage(ctx context.Context, stage Stage, seq stream.Sequence) <-chan stageFragment {
	out := make(chan stageFragment)

	r.stages.Add(1)
	go func() {
		defer r.stages.Done()
		defer close(out)

		n := 0
		send := func(fragment stream.Fragment) bool {
			n++
			select {
			case out <- stageFragment{seq: n, fragment: fragment}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		err := runStage(ctx, func(ctx context.Context) {
			ctx, span := tracer.Start(ctx, string(stage)+" stage")
			defer span.End()

			for fragment := range seq {
				if fragment.Kind == stream.KindError {
					span.RecordError(fragment.Err)
					span.SetStatus(codes.Error, fragment.Err.Error())
				}
				if !send(fragment) || fragment.IsTerminal() || ctx.Err() != nil {
					return
				}
			}
		})
		if err != nil {
			send(stream.Error(err))
		}
	}()

	return out
}

func staticReply(text string) stream.Sequence {
	return func(yield func(stream.Fragment) bool) {
		if !yield(stream.TextDelta(text)) {
			return
		}
		yield(stream.End())
	}
}
