// Package scheduler retires found-item reports whose items were never
// surrendered at the office.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/erazemk/lostfound/internal/model"
)

// Cleaner is the part of the state machine the cleanup needs.
type Cleaner interface {
	ListProcessesByStatus(ctx context.Context, status string) ([]model.Process, error)
	// ExpireSurrender deletes the process and its item only if it is still
	// awaiting surrender and older than cutoff, reporting whether it did.
	ExpireSurrender(ctx context.Context, processID string, cutoff time.Time) (bool, error)
}

// Config controls the cleanup loop.
type Config struct {
	// Schedule is a cron expression or descriptor such as "@every 1h".
	Schedule string
	// MaxAge is how long a found item may await surrender.
	MaxAge time.Duration
	// RetryDelay replaces the next scheduled tick after a failed scan.
	RetryDelay time.Duration
	// RunTimeout bounds a single scan.
	RunTimeout time.Duration
	// RunOnStart scans once before waiting for the first tick.
	RunOnStart bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Schedule:   "@every 1h",
		MaxAge:     72 * time.Hour,
		RetryDelay: 5 * time.Minute,
		RunTimeout: 5 * time.Minute,
	}
}

// Cleanup periodically deletes awaiting_surrender processes older than
// MaxAge together with their items.
type Cleanup struct {
	cleaner  Cleaner
	cfg      Config
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

// New validates cfg and creates a Cleanup. Zero durations take their
// defaults. A nil logger uses slog.Default and a nil now uses time.Now.
func New(cleaner Cleaner, cfg Config, logger *slog.Logger, now func() time.Time) (*Cleanup, error) {
	def := DefaultConfig()
	if cfg.Schedule == "" {
		cfg.Schedule = def.Schedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = def.RunTimeout
	}

	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing cleanup schedule %q: %w", cfg.Schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	return &Cleanup{cleaner: cleaner, cfg: cfg, schedule: schedule, logger: logger, now: now}, nil
}

// Run scans on every scheduled tick until ctx is cancelled. A failed scan is
// retried after RetryDelay.
func (c *Cleanup) Run(ctx context.Context) {
	c.logger.Info("cleanup scheduler started", "schedule", c.cfg.Schedule, "max_age", c.cfg.MaxAge)
	defer c.logger.Info("cleanup scheduler stopped")

	if c.cfg.RunOnStart {
		if !c.runWithRetry(ctx) {
			return
		}
	}

	for {
		now := c.now()
		if !sleep(ctx, c.schedule.Next(now).Sub(now)) {
			return
		}
		if !c.runWithRetry(ctx) {
			return
		}
	}
}

// runWithRetry scans until a scan succeeds. It returns false when ctx is
// cancelled.
func (c *Cleanup) runWithRetry(ctx context.Context) bool {
	for {
		runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
		_, err := c.RunOnce(runCtx)
		cancel()

		if ctx.Err() != nil {
			return false
		}
		if err == nil {
			return true
		}

		c.logger.Error("cleanup scan failed", "error", err, "retry_in", c.cfg.RetryDelay)
		if !sleep(ctx, c.cfg.RetryDelay) {
			return false
		}
	}
}

// RunOnce deletes every expired awaiting_surrender process and returns how
// many were removed. Each deletion re-checks status and age, so a report
// surrendered after the listing survives. Only a failure to list processes is returned; failed
// deletions are logged and skipped.
func (c *Cleanup) RunOnce(ctx context.Context) (int, error) {
	processes, err := c.cleaner.ListProcessesByStatus(ctx, model.StatusAwaitingSurrender)
	if err != nil {
		return 0, fmt.Errorf("listing unsurrendered items: %w", err)
	}

	cutoff := c.now().Add(-c.cfg.MaxAge)
	deleted := 0
	for _, p := range processes {
		if !p.CreatedAt.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		expired, err := c.cleaner.ExpireSurrender(ctx, p.ID, cutoff)
		if err != nil {
			c.logger.Error("failed to delete expired report", "process_id", p.ID, "item_id", p.ItemID, "error", err)
			continue
		}
		if !expired {
			continue
		}
		c.logger.Info("deleted unsurrendered report", "process_id", p.ID, "item_id", p.ItemID, "created_at", p.CreatedAt)
		deleted++
	}

	if deleted > 0 {
		c.logger.Info("cleanup finished", "deleted", deleted)
	}
	return deleted, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
