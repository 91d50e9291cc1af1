package orchestration

import (
	"context"
	"fmt"
	"sync"
)

// onCancel runs hook once ctx ends. Calling the returned release before that
// detaches the hook; release is safe to call more than once.
func onCancel(ctx context.Context, hook func()) (release func()) {
	detached := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			hook()
		case <-detached:
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(detached) }) }
}

// runStage calls consume and converts a panic in a vendor adapter into an
// error.
func runStage(ctx context.Context, consume func(context.Context)) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("adapter panicked: %v", recovered)
		}
	}()

	consume(ctx)
	return nil
}
