package orchestration

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStore owns every live session of an orchestrator.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idleTimeout time.Duration
	now         func() time.Time
	machineOpts []StateMachineOption
}

type SessionStoreOption func(*SessionStore)

// WithSessionClock replaces time.Now for activity tracking.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		s.now = now
	}
}

func WithStateMachineOptions(opts ...StateMachineOption) SessionStoreOption {
	return func(s *SessionStore) {
		s.machineOpts = append(s.machineOpts, opts...)
	}
}

// NewSessionStore creates a store whose sessions become evictable after
// idleTimeout without activity. A zero idleTimeout disables eviction.
func NewSessionStore(idleTimeout time.Duration, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		sessions:    map[string]*Session{},
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) Create() *Session {
	session := newSession(uuid.NewString(), NewStateMachine(s.machineOpts...), s.now)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

func (s *SessionStore) Touch(id string) error {
	session, err := s.Get(id)
	if err != nil {
		return err
	}
	session.touch()
	return nil
}

// Remove deletes the session after cancelling its active turn.
func (s *SessionStore) Remove(id string) (*Session, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	session.terminate()
	return session, nil
}

// EvictIdle removes every session inactive for longer than the idle timeout
// and returns their ids.
func (s *SessionStore) EvictIdle() []string {
	if s.idleTimeout <= 0 {
		return nil
	}
	cutoff := s.now().Add(-s.idleTimeout)

	var evicted []*Session
	s.mu.Lock()
	for id, session := range s.sessions {
		if session.LastActivity().Before(cutoff) {
			evicted = append(evicted, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, session := range evicted {
		session.terminate()
		ids = append(ids, session.ID)
	}
	return ids
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll removes every session and returns the turns that were in flight.
func (s *SessionStore) CloseAll() []*Turn {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = map[string]*Session{}
	s.mu.Unlock()

	var turns []*Turn
	for _, session := range sessions {
		if turn := session.terminate(); turn != nil {
			turns = append(turns, turn)
		}
	}
	return turns
}
