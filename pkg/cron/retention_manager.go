package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/latoulicious/tarumae/pkg/logging"
)

// DefaultSchedule runs every 6 hours
const DefaultSchedule = "0 0 */6 * * *"

// PruneFunc removes history older than cutoff and reports how many rows went
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionManager periodically prunes playback history
type RetentionManager struct {
	cron      *cron.Cron
	cronEntry cron.EntryID
	prune     PruneFunc
	retention time.Duration
	schedule  string
	timeout   time.Duration
	logger    logging.Logger
	now       func() time.Time

	mutex     sync.RWMutex
	isRunning bool
	lastRun   time.Time
	lastError error
}

// NewRetentionManager schedules prune on schedule (six-field cron spec with
// seconds). Call Start to begin.
func NewRetentionManager(prune PruneFunc, retention time.Duration, schedule string, logger logging.Logger) (*RetentionManager, error) {
	if prune == nil {
		return nil, fmt.Errorf("prune function is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be > 0")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = logging.NullLogger()
	}

	manager := &RetentionManager{
		cron:      cron.New(cron.WithSeconds()),
		prune:     prune,
		retention: retention,
		schedule:  schedule,
		timeout:   time.Minute,
		logger:    logger.With(logging.String("component", "history_retention")),
		now:       time.Now,
	}

	entryID, err := manager.cron.AddFunc(schedule, manager.runPrune)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule history pruning: %w", err)
	}
	manager.cronEntry = entryID
	return manager, nil
}

// Start starts the scheduler and runs one prune in the background
func (rm *RetentionManager) Start() {
	rm.cron.Start()
	rm.logger.Info("Scheduled history pruning",
		logging.String("schedule", rm.schedule),
		logging.Duration("retention", rm.retention),
	)
	go rm.runPrune()
}

// RunNow prunes synchronously and returns the result
func (rm *RetentionManager) RunNow() error {
	rm.runPrune()
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.lastError
}

// runPrune performs one pass; overlapping runs are skipped
func (rm *RetentionManager) runPrune() {
	rm.mutex.Lock()
	if rm.isRunning {
		rm.mutex.Unlock()
		rm.logger.Debug("History prune already in progress, skipping")
		return
	}
	rm.isRunning = true
	rm.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), rm.timeout)
	defer cancel()

	cutoff := rm.now().Add(-rm.retention)
	removed, err := rm.prune(ctx, cutoff)
	if err != nil {
		rm.logger.Error("History prune failed", logging.Error(err))
	} else {
		rm.logger.Info("History prune completed",
			logging.Int64("removed", removed),
			logging.Any("cutoff", cutoff),
		)
	}

	rm.mutex.Lock()
	rm.isRunning = false
	rm.lastRun = rm.now()
	rm.lastError = err
	rm.mutex.Unlock()
}

// Stop stops the scheduler and waits for a running prune to finish
func (rm *RetentionManager) Stop() {
	<-rm.cron.Stop().Done()
	rm.logger.Info("History retention stopped")
}

// GetNextRun returns the next scheduled run time
func (rm *RetentionManager) GetNextRun() time.Time {
	return rm.cron.Entry(rm.cronEntry).Next
}

// IsRunning returns whether a prune is currently in progress
func (rm *RetentionManager) IsRunning() bool {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.isRunning
}

// LastRun returns when the last prune finished
func (rm *RetentionManager) LastRun() time.Time {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()
	return rm.lastRun
}

// GetSchedule returns the current cron schedule
func (rm *RetentionManager) GetSchedule() string {
	return rm.schedule
}
