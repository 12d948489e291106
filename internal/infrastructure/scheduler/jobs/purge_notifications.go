// Package jobs contains the scheduled maintenance jobs.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE NOTIFICATIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Purger removes expired notifications and reports how many went.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// PurgeNotificationsJob deletes notifications past their TTL. Reads already
// hide expired entries; the job only reclaims storage.
type PurgeNotificationsJob struct {
	purger  Purger
	timeout time.Duration
	logger  *slog.Logger

	lastRemoved atomic.Int64
	totalPurged atomic.Int64
}

// NewPurgeNotificationsJob creates the job. timeout bounds one run.
func NewPurgeNotificationsJob(purger Purger, timeout time.Duration, logger *slog.Logger) *PurgeNotificationsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &PurgeNotificationsJob{
		purger:  purger,
		timeout: timeout,
		logger:  logger.With("job", "purge_expired_notifications"),
	}
}

// Name implements scheduler.Job.
func (j *PurgeNotificationsJob) Name() string { return "purge_expired_notifications" }

// Description implements scheduler.Job.
func (j *PurgeNotificationsJob) Description() string {
	return "Deletes notifications whose TTL has passed"
}

// Run implements scheduler.Job.
func (j *PurgeNotificationsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	removed, err := j.purger.PurgeExpired(ctx)
	// A partial purge still counts what went.
	j.lastRemoved.Store(int64(removed))
	j.totalPurged.Add(int64(removed))
	if err != nil {
		return err
	}
	if removed > 0 {
		j.logger.Info("purged expired notifications", "count", removed)
	}
	return nil
}

// Stats returns the last run's and the cumulative removal counts.
func (j *PurgeNotificationsJob) Stats() (last, total int64) {
	return j.lastRemoved.Load(), j.totalPurged.Load()
}
