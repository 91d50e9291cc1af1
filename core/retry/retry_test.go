package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
)

func fastPolicy(maxRetries uint64) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoRetriesRetryableFailuresUntilSuccess(t *testing.T) {
	attempts := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &Failure{Kind: events.ErrorKindASR, Details: "garbled"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnFailureThatMayNotBeRetried(t *testing.T) {
	attempts := 0
	failure := &Failure{Kind: events.ErrorKindPermissionDenied}
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		attempts++
		return failure
	})

	if !errors.Is(err, failure) {
		t.Fatalf("expected the failure to be returned, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
		attempts++
		return &Failure{Kind: events.ErrorKindTTS}
	})

	var failure *Failure
	if !errors.As(err, &failure) || failure.Kind != events.ErrorKindTTS {
		t.Fatalf("expected the last failure, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", attempts)
	}
}

func TestDoStopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Policy{MaxRetries: 5, BaseDelay: time.Hour}.Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return &Failure{Kind: events.ErrorKindNetwork}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "llm failure", err: &Failure{Kind: events.ErrorKindLLM}, want: true},
		{name: "device failure", err: &Failure{Kind: events.ErrorKindDeviceNotFound}, want: false},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("bad request"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFailureFromEvent(t *testing.T) {
	failure := FailureFromEvent(events.NewError(events.ErrorKindASR, "no speech recognized"))

	if failure.Kind != events.ErrorKindASR || failure.Details != "no speech recognized" {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if failure.Message != events.ErrorKindASR.UserMessage() {
		t.Fatalf("expected user message to be carried, got %q", failure.Message)
	}
	if got := failure.Error(); got != "asr_error: no speech recognized" {
		t.Fatalf("unexpected error text %q", got)
	}
}
