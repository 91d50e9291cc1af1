package orchestration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSessionStoreCreatesIdleSessionsWithEmptyHistory(t *testing.T) {
	store := NewSessionStore(time.Minute)

	first := store.Create()
	second := store.Create()

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", first.ID, second.ID)
	}
	if first.State() != StateIdle {
		t.Fatalf("expected new session to be idle, got %s", first.State())
	}
	if len(first.History()) != 0 {
		t.Fatalf("expected empty history, got %v", first.History())
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}

	got, err := store.Get(first.ID)
	if err != nil || got != first {
		t.Fatalf("expected to get the created session, got %v (%v)", got, err)
	}
}

func TestSessionStoreUnknownIDIsSessionError(t *testing.T) {
	store := NewSessionStore(time.Minute)

	if _, err := store.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound from Get, got %v", err)
	}
	if err := store.Touch("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound from Touch, got %v", err)
	}
	if _, err := store.Remove("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound from Remove, got %v", err)
	}
}

func TestSessionStoreEvictsOnlyIdleSessions(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(10*time.Minute, WithSessionClock(clock.Now))

	stale := store.Create()
	fresh := store.Create()

	clock.Advance(8 * time.Minute)
	if err := store.Touch(fresh.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock.Advance(5 * time.Minute)

	evicted := store.EvictIdle()
	if len(evicted) != 1 || evicted[0] != stale.ID {
		t.Fatalf("expected only %q to be evicted, got %v", stale.ID, evicted)
	}
	if _, err := store.Get(stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected evicted session to be gone, got %v", err)
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Fatalf("expected fresh session to survive, got %v", err)
	}
}

func TestSessionStoreEvictionCancelsActiveTurn(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(time.Minute, WithSessionClock(clock.Now))

	session := store.Create()
	turn := newTurn(context.Background(), session.ID)
	session.setActiveTurn(turn)
	session.machine.Transition(TriggerStart)
	session.machine.Bind(turn.ID(), turn.Cancel)
	session.machine.Transition(TriggerInputReceived)

	clock.Advance(2 * time.Minute)
	store.EvictIdle()

	if !turn.IsCancelled() {
		t.Fatalf("expected eviction to cancel the active turn")
	}
	if session.State() != StateIdle {
		t.Fatalf("expected evicted session to be stopped, got %s", session.State())
	}
}

func TestSessionStoreWithoutIdleTimeoutNeverEvicts(t *testing.T) {
	clock := newFakeClock()
	store := NewSessionStore(0, WithSessionClock(clock.Now))
	store.Create()

	clock.Advance(24 * time.Hour)
	if evicted := store.EvictIdle(); len(evicted) != 0 {
		t.Fatalf("expected no evictions, got %v", evicted)
	}
}

func TestSessionHistoryIsACopy(t *testing.T) {
	store := NewSessionStore(time.Minute)
	session := store.Create()
	session.appendMessage(userMessage("hello"))

	history := session.History()
	history[0].Content = "changed"

	if got := session.History()[0].Content; got != "hello" {
		t.Fatalf("expected stored history to be unchanged, got %q", got)
	}
}
