package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

// Orchestrator runs voice conversations: it owns the sessions and chains
// speech-to-text, the LLM and text-to-speech into one event stream per turn.
type Orchestrator struct {
	speechToText      speechtotext.Transcriber
	transcriptionOpts []speechtotext.TranscriptionOption
	llm               llms.Generator
	generateOpts      []llms.GenerateOption
	textToSpeech      texttospeech.Synthesizer
	synthesisOpts     []texttospeech.SynthesisOption

	systemPrompt        string
	greeting            string
	greetingInstruction string
	keepListening       bool

	idleTimeout      time.Duration
	evictionInterval time.Duration
	now              func() time.Time

	sessions *SessionStore
	sweeper  *sweeper

	closed    atomic.Bool
	closeOnce sync.Once
	turns     sync.WaitGroup
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		greetingInstruction: DefaultGreetingInstruction,
		keepListening:       true,
		idleTimeout:         DefaultIdleTimeout,
		evictionInterval:    DefaultEvictionInterval,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	var machineOpts []StateMachineOption
	if !o.keepListening {
		machineOpts = append(machineOpts, WithIdleAfterSpeaking())
	}
	o.sessions = NewSessionStore(o.idleTimeout,
		WithSessionClock(o.now),
		WithStateMachineOptions(machineOpts...),
	)

	if o.evictionInterval > 0 && o.idleTimeout > 0 {
		sweeper, err := startSweeper(o.sessions, o.evictionInterval)
		if err != nil {
			logger.Error("idle session eviction disabled", "error", err)
		}
		o.sweeper = sweeper
	}

	return o
}

// Sessions exposes the store, mainly for eviction and inspection.
func (o *Orchestrator) Sessions() *SessionStore {
	return o.sessions
}

// CreateSession registers a new idle session with an empty history.
func (o *Orchestrator) CreateSession() (string, error) {
	if o.closed.Load() {
		return "", ErrOrchestratorClosed
	}
	session := o.sessions.Create()
	logger.Info("session created", "session.id", session.ID)
	return session.ID, nil
}

// StartConversation has the agent speak first. The session moves to listening
// if it was idle and the greeting turn is started right away.
func (o *Orchestrator) StartConversation(ctx context.Context, sessionID string) (*Turn, error) {
	return o.admit(ctx, sessionID, turnInput{greeting: true})
}

// SubmitAudio starts a turn for a finished user utterance. A turn that is
// still running is interrupted and allowed to settle before the new one
// touches the session.
func (o *Orchestrator) SubmitAudio(ctx context.Context, sessionID string, audio []byte, opts ...speechtotext.TranscriptionOption) (*Turn, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return o.admit(ctx, sessionID, turnInput{audio: audio, transcriptionOpts: opts})
}

// History returns the committed messages of the session in order.
func (o *Orchestrator) History(sessionID string) ([]llms.Message, error) {
	session, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	session.touch()
	return session.History(), nil
}

func (o *Orchestrator) State(sessionID string) (State, error) {
	session, err := o.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}
	return session.State(), nil
}

// Stop cancels the active turn, waits for it to settle and returns the
// session to idle. The session and its history are kept.
func (o *Orchestrator) Stop(ctx context.Context, sessionID string) error {
	session, err := o.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	session.admission.Lock()
	defer session.admission.Unlock()

	if err := o.admissible(session); err != nil {
		return err
	}
	if _, err := session.machine.Transition(TriggerStop); err != nil {
		return err
	}
	if err := settle(ctx, session); err != nil {
		return err
	}
	session.touch()
	return nil
}

// EndSession stops the session and forgets it.
func (o *Orchestrator) EndSession(sessionID string) error {
	session, err := o.sessions.Remove(sessionID)
	if err != nil {
		return err
	}
	logger.Info("session ended", "session.id", session.ID)
	return nil
}

// Close ends every session and waits for their turns to settle.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		if o.sweeper != nil {
			o.sweeper.Stop(context.Background())
		}
		o.sessions.CloseAll()
		o.turns.Wait()
	})
}

func (o *Orchestrator) admit(ctx context.Context, sessionID string, input turnInput) (*Turn, error) {
	if o.closed.Load() {
		return nil, ErrOrchestratorClosed
	}
	session, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	session.admission.Lock()
	defer session.admission.Unlock()

	if err := o.admissible(session); err != nil {
		return nil, err
	}

	machine := session.machine
	if machine.BoundTurn() != "" {
		if _, err := machine.Interrupt(); err != nil {
			logger.Debug("active turn not interruptible", "session.id", session.ID, "error", err)
		}
	}
	if err := settle(ctx, session); err != nil {
		return nil, err
	}

	if machine.State() == StateIdle {
		if !input.greeting {
			return nil, fmt.Errorf("%w: audio submitted before the conversation started", ErrInvalidTransition)
		}
		if _, err := machine.Transition(TriggerStart); err != nil {
			return nil, err
		}
	}

	turn := newTurn(ctx, session.ID)
	session.setActiveTurn(turn)
	machine.Bind(turn.id, turn.Cancel)
	if _, err := machine.Transition(TriggerInputReceived); err != nil {
		machine.Bind("", nil)
		session.clearActiveTurn(turn)
		turn.Cancel()
		turn.finish()
		return nil, err
	}
	session.touch()

	run := &turnRun{orchestrator: o, session: session, turn: turn, input: input}
	o.turns.Add(1)
	go func() {
		defer o.turns.Done()
		run.run()
	}()

	return turn, nil
}

// admissible reports whether session may still take turns. It must be called
// with the admission lock held: Close and session removal take the same lock,
// so a turn admitted after this check is always seen by them.
func (o *Orchestrator) admissible(session *Session) error {
	if o.closed.Load() {
		return ErrOrchestratorClosed
	}
	if session.ended {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}
	return nil
}

// settle cancels the session's active turn, if any, and waits until it has
// released the session.
func settle(ctx context.Context, session *Session) error {
	turn := session.ActiveTurn()
	if turn == nil {
		return nil
	}
	turn.Cancel()
	if err := turn.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for turn %s to settle: %w", turn.ID(), err)
	}
	return nil
}
