package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// sweeper periodically evicts idle sessions.
type sweeper struct {
	cron *cron.Cron
}

func startSweeper(store *SessionStore, interval time.Duration) (*sweeper, error) {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if evicted := store.EvictIdle(); len(evicted) > 0 {
			logger.Info("evicted idle sessions", "count", len(evicted), "session.ids", evicted)
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule session eviction: %w", err)
	}
	c.Start()

	return &sweeper{cron: c}, nil
}

// Stop waits for a running sweep to finish.
func (s *sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
