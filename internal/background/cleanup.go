package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/repositories"
)

// EventPruner deletes persisted security events older than a cutoff
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically drops expired entries from in-memory stores and
// prunes security events past their retention.
type CleanupManager struct {
	sweepers  map[string]repositories.Sweeper
	pruner    EventPruner
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager. pruner may be nil and
// a non-positive retention disables pruning.
func NewCleanupManager(
	sweepers map[string]repositories.Sweeper,
	pruner EventPruner,
	retention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sweepers:  sweepers,
		pruner:    pruner,
		retention: retention,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// SetClock replaces the time source passed to sweepers
func (cm *CleanupManager) SetClock(now func() time.Time) {
	cm.now = now
}

// Start begins the periodic cleanup task and blocks until Stop or ctx ends
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep and prune pass
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	now := cm.now()

	for name, s := range cm.sweepers {
		if removed := s.Sweep(now); removed > 0 {
			cm.logger.Debug("swept expired entries", slog.String("store", name), slog.Int("removed", removed))
		}
	}

	if cm.pruner == nil || cm.retention <= 0 {
		return
	}

	pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.pruner.DeleteOlderThan(pruneCtx, now.Add(-cm.retention))
	if err != nil {
		cm.logger.Error("failed to prune security events", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("security event retention applied", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
