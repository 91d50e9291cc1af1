package orchestration

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/events"
)

type Outcome string

const (
	OutcomePending   Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Turn is one pass through the pipeline for a session. Its events are read
// through Events by a single consumer.
type Turn struct {
	id        string
	sessionID string

	ctx    context.Context
	cancel context.CancelFunc

	events chan events.Event
	done   chan struct{}

	// mu makes committing results and cancelling mutually exclusive.
	mu        sync.Mutex
	cancelled atomic.Bool
	outcome   Outcome
	err       error
	stage     Stage
	sequences map[Stage]int

	audioIndex int
}

func newTurn(ctx context.Context, sessionID string) *Turn {
	ctx, cancel := context.WithCancel(ctx)
	return &Turn{
		id:        uuid.NewString(),
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan events.Event),
		done:      make(chan struct{}),
		sequences: map[Stage]int{},
	}
}

func (t *Turn) ID() string        { return t.id }
func (t *Turn) SessionID() string { return t.sessionID }

// Events yields the turn's events in production order. Stopping the
// iteration early cancels the turn. Nothing produced after cancellation is
// ever yielded.
func (t *Turn) Events() iter.Seq[events.Event] {
	return func(yield func(events.Event) bool) {
		for event := range t.events {
			if t.cancelled.Load() {
				continue
			}
			if !yield(event) {
				t.Cancel()
				return
			}
		}
	}
}

// Cancel stops the turn. It is a no-op once the turn has an outcome.
func (t *Turn) Cancel() {
	t.mu.Lock()
	if t.outcome == OutcomePending {
		t.cancelled.Store(true)
	}
	t.mu.Unlock()
	t.cancel()
}

func (t *Turn) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the turn has settled: its outcome is decided, history
// is no longer touched and every stage released its upstream connection.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn settles or ctx ends.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Turn) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Err is the failure that ended the turn, if it failed.
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Turn) Stage() Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage
}

func (t *Turn) enterStage(stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
}

// accept admits the next fragment of stage. Fragments that arrive after
// cancellation or out of sequence are rejected.
func (t *Turn) accept(stage Stage, seq int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled.Load() || t.outcome != OutcomePending {
		return false
	}
	if seq != t.sequences[stage]+1 {
		return false
	}
	t.sequences[stage] = seq
	return true
}

// commit runs fn and records outcome unless the turn was cancelled first.
func (t *Turn) commit(outcome Outcome, err error, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled.Load() || t.outcome != OutcomePending {
		return false
	}
	if fn != nil {
		fn()
	}
	if outcome != OutcomePending {
		t.outcome = outcome
		t.err = err
	}
	return true
}

func (t *Turn) markCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outcome == OutcomePending {
		t.cancelled.Store(true)
		t.outcome = OutcomeCancelled
	}
}

// emit hands event to the consumer. It reports false once the turn is
// cancelled.
func (t *Turn) emit(event events.Event) bool {
	if t.cancelled.Load() {
		return false
	}
	select {
	case t.events <- event:
		return !t.cancelled.Load()
	case <-t.ctx.Done():
		return false
	}
}

func (t *Turn) nextAudioIndex() int {
	index := t.audioIndex
	t.audioIndex++
	return index
}

func (t *Turn) finish() {
	t.markCancelled()
	close(t.events)
	t.cancel()
	close(t.done)
}
