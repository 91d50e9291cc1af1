package orchestration

import (
	"fmt"
	"sync"
)

type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
)

type Trigger string

const (
	TriggerStart            Trigger = "start"
	TriggerInputReceived    Trigger = "input_received"
	TriggerFirstAudio       Trigger = "first_audio"
	TriggerSpeakingComplete Trigger = "speaking_complete"
	TriggerUserInterrupt    Trigger = "user_interrupt"
	TriggerError            Trigger = "error"
	TriggerStop             Trigger = "stop"
)

var transitions = map[State]map[Trigger]State{
	StateIdle: {
		TriggerStart: StateListening,
		TriggerStop:  StateIdle,
	},
	StateListening: {
		TriggerInputReceived: StateProcessing,
		TriggerStop:          StateIdle,
	},
	StateProcessing: {
		TriggerFirstAudio:    StateSpeaking,
		TriggerUserInterrupt: StateListening,
		TriggerError:         StateListening,
		TriggerStop:          StateIdle,
	},
	StateSpeaking: {
		TriggerSpeakingComplete: StateListening,
		TriggerUserInterrupt:    StateListening,
		TriggerError:            StateListening,
		TriggerStop:             StateIdle,
	},
}

// StateListener observes applied transitions. Listeners run while the
// machine is locked and must not call back into it.
type StateListener func(from, to State, trigger Trigger)

// StateMachine tracks the conversation state of one session and owns the
// cancellation of the turn it is bound to.
type StateMachine struct {
	mu    sync.Mutex
	state State

	keepListening bool

	boundTurn  string
	cancelTurn func()

	listeners []StateListener
}

type StateMachineOption func(*StateMachine)

// WithIdleAfterSpeaking makes a completed turn return the session to idle
// instead of listening.
func WithIdleAfterSpeaking() StateMachineOption {
	return func(m *StateMachine) {
		m.keepListening = false
	}
}

func WithStateListener(listener StateListener) StateMachineOption {
	return func(m *StateMachine) {
		m.listeners = append(m.listeners, listener)
	}
}

func NewStateMachine(opts ...StateMachineOption) *StateMachine {
	m := &StateMachine{state: StateIdle, keepListening: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StateMachine) AddListener(listener StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

func (m *StateMachine) CanTransition(trigger Trigger) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.target(trigger)
	return ok
}

// Transition applies trigger. Interrupting or stopping cancels the bound turn
// before Transition returns.
func (m *StateMachine) Transition(trigger Trigger) (State, error) {
	return m.apply("", trigger)
}

// TransitionTurn applies trigger on behalf of turnID. Turns that are no longer
// bound get ErrStaleTurn and leave the state untouched.
func (m *StateMachine) TransitionTurn(turnID string, trigger Trigger) (State, error) {
	if turnID == "" {
		return "", ErrStaleTurn
	}
	return m.apply(turnID, trigger)
}

// Interrupt is the barge-in transition.
func (m *StateMachine) Interrupt() (State, error) {
	return m.Transition(TriggerUserInterrupt)
}

// Bind attaches the turn whose cancellation the machine controls.
func (m *StateMachine) Bind(turnID string, cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boundTurn = turnID
	m.cancelTurn = cancel
}

func (m *StateMachine) BoundTurn() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundTurn
}

func (m *StateMachine) apply(turnID string, trigger Trigger) (State, error) {
	m.mu.Lock()
	if turnID != "" && turnID != m.boundTurn {
		state := m.state
		m.mu.Unlock()
		return state, ErrStaleTurn
	}

	from := m.state
	to, ok := m.target(trigger)
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, trigger, from)
	}
	m.state = to

	var cancel func()
	switch trigger {
	case TriggerUserInterrupt, TriggerStop:
		cancel = m.cancelTurn
		m.boundTurn, m.cancelTurn = "", nil
	case TriggerSpeakingComplete, TriggerError:
		m.boundTurn, m.cancelTurn = "", nil
	}

	for _, listener := range m.listeners {
		listener(from, to, trigger)
	}
	m.mu.Unlock()

	// Cancelling takes the turn's lock, which is held while the turn asks
	// for transitions, so it runs after the machine is unlocked.
	if cancel != nil {
		cancel()
	}
	return to, nil
}

func (m *StateMachine) target(trigger Trigger) (State, bool) {
	to, ok := transitions[m.state][trigger]
	if ok && trigger == TriggerSpeakingComplete && !m.keepListening {
		to = StateIdle
	}
	return to, ok
}
