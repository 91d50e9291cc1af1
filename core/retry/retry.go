// Package retry is the caller-side policy for resubmitting whole turns. It
// never resumes a partially consumed stream: every attempt starts a new turn.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/koscakluka/ema-voice/core/events"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// Policy is an exponential backoff doubling from BaseDelay up to MaxDelay.
type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Failure is a turn that ended with an error event.
type Failure struct {
	Kind    events.ErrorKind
	Message string
	Details string
}

func FailureFromEvent(event events.Error) *Failure {
	return &Failure{Kind: event.ErrorKind(), Message: event.Message(), Details: event.Details()}
}

func (f *Failure) Error() string {
	if f.Details == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Details)
}

func (f *Failure) RetryAllowed() bool {
	return f.Kind.RetryAllowed()
}

// Retryable reports whether err may be retried by starting a new turn.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var allowed interface{ RetryAllowed() bool }
	if errors.As(err, &allowed) {
		return allowed.RetryAllowed()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Do runs attempt until it succeeds, fails with an error that may not be
// retried or the retries are used up. The last error is returned.
func (p Policy) Do(ctx context.Context, attempt func(ctx context.Context) error) error {
	n := 0
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		n++
		err := attempt(ctx)
		if err == nil || !Retryable(err) {
			return err
		}

		logger.Debug("attempt failed, retrying", "attempt", n, "error", err)
		return goretry.RetryableError(err)
	})
}

func (p Policy) backoff() goretry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}

	backoff := goretry.NewExponential(base)
	if p.MaxDelay > 0 {
		backoff = goretry.WithCappedDuration(p.MaxDelay, backoff)
	}
	return goretry.WithMaxRetries(p.MaxRetries, backoff)
}
