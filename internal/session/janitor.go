package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically deletes sessions idle past the retention window.
type Janitor struct {
	store     *Store
	cron      *cron.Cron
	retention time.Duration
	logger    *slog.Logger
}

// NewJanitor creates a janitor sweeping on the given cron schedule
// (a standard cron expression or a predefined form like "@every 1h").
// logger may be nil.
func NewJanitor(store *Store, schedule string, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		store:     store,
		cron:      cron.New(),
		retention: retention,
		logger:    logger,
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins the sweep schedule. Blocks until the context is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.cron.Start()
	j.logger.Info("session janitor started", "retention", j.retention)

	<-ctx.Done()
	j.cron.Stop()
	j.logger.Info("session janitor stopped")
	return ctx.Err()
}

func (j *Janitor) sweep() {
	cutoff := time.Now().Add(-j.retention)
	n, err := j.store.DeleteIdle(cutoff)
	if err != nil {
		j.logger.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("idle sessions removed", "count", n)
	}
}
