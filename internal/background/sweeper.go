package background

import (
	"context"
	"log/slog"
	"time"
)

// MemorySweeper releases expired in-memory fraud tracking state.
type MemorySweeper interface {
	Sweep(now time.Time) int
}

// LogPruner removes fraud log rows past the retention horizon.
type LogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically drops expired rate-limit windows and suspicion
// counters, and prunes fraud logs past retention. Without it, state for
// one-off IPs and devices would accumulate forever.
type Sweeper struct {
	sweepers  []MemorySweeper
	pruner    LogPruner
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewSweeper creates a new sweeper
func NewSweeper(
	sweepers []MemorySweeper,
	pruner LogPruner,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *Sweeper {
	return &Sweeper{
		sweepers:  sweepers,
		pruner:    pruner,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic sweep task
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopCh:
			s.logger.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sweeper context cancelled")
			return
		}
	}
}

func (s *Sweeper) runSweep(ctx context.Context) {
	now := time.Now()

	removed := 0
	for _, sweeper := range s.sweepers {
		removed += sweeper.Sweep(now)
	}
	if removed > 0 {
		s.logger.Info("expired fraud tracking state swept", slog.Int("entries_removed", removed))
	}

	if s.pruner == nil || s.retention <= 0 {
		return
	}

	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := s.pruner.DeleteOlderThan(pruneCtx, now.Add(-s.retention))
	if err != nil {
		s.logger.Error("failed to prune fraud logs", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		s.logger.Info("fraud log retention prune completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the sweeper to stop
func (s *Sweeper) Stop() {
	close(s.stopCh)
}
