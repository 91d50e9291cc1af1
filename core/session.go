package orchestration

import (
	"slices"
	"sync"
	"time"

	"github.com/koscakluka/ema-voice/core/llms"
)

// Session is one user's conversation: its history, its state machine and the
// turn currently in flight.
type Session struct {
	ID        string
	CreatedAt time.Time

	machine *StateMachine
	now     func() time.Time

	// admission serializes everything that starts, replaces or stops a turn.
	admission sync.Mutex
	// ended is set once the session has left its store. Guarded by admission.
	ended bool

	mu           sync.Mutex
	history      []llms.Message
	active       *Turn
	lastActivity time.Time
}

func newSession(id string, machine *StateMachine, now func() time.Time) *Session {
	createdAt := now()
	return &Session{
		ID:           id,
		CreatedAt:    createdAt,
		machine:      machine,
		now:          now,
		lastActivity: createdAt,
	}
}

func (s *Session) State() State {
	return s.machine.State()
}

func (s *Session) StateMachine() *StateMachine {
	return s.machine
}

// History returns a copy of the conversation so far.
func (s *Session) History() []llms.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) ActiveTurn() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
}

func (s *Session) appendMessage(msg llms.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

func (s *Session) setActiveTurn(turn *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = turn
}

func (s *Session) clearActiveTurn(turn *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == turn {
		s.active = nil
	}
}

// terminate stops the session's state machine, cancelling the bound turn,
// and returns the turn that was in flight.
func (s *Session) terminate() *Turn {
	s.admission.Lock()
	defer s.admission.Unlock()

	s.ended = true
	turn := s.ActiveTurn()
	if _, err := s.machine.Transition(TriggerStop); err != nil {
		logger.Warn("failed to stop session state machine", "session.id", s.ID, "error", err)
	}
	if turn != nil {
		turn.Cancel()
	}
	return turn
}
