package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	obsmetrics "github.com/smallbiznis/provwatch/internal/observability/metrics"
)

// withJobLock claims the job's lease row before running fn and releases
// it after. A second worker observing a live lease defers the job
// instead of running concurrently. The claim transaction is kept short;
// fn runs outside it.
func (s *Scheduler) withJobLock(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	claimed, err := s.claimJobLock(ctx, job)
	if err != nil {
		return err
	}
	if !claimed {
		obsmetrics.Reconcile().IncBatchDeferred(job, obsmetrics.BatchDeferredReasonLockHeld)
		s.logger(ctx).Info("scheduler.job.deferred",
			zap.String("job", job),
			zap.String("reason", obsmetrics.BatchDeferredReasonLockHeld),
		)
		return nil
	}
	defer s.releaseJobLock(ctx, job)
	return fn(ctx)
}

// leaseDuration bounds how long a claim survives a crashed worker
// before another instance may steal the job.
func (s *Scheduler) leaseDuration() time.Duration {
	return 2 * s.cfg.JobTimeout
}

func (s *Scheduler) claimJobLock(ctx context.Context, job string) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	claimed := false
	err := s.db.WithContext(claimCtx).Transaction(func(tx *gorm.DB) error {
		var lock struct {
			Job      string
			LockedAt *time.Time
		}
		lockStart := time.Now()
		err := tx.WithContext(claimCtx).Raw(
			`SELECT job, locked_at
			 FROM job_locks
			 WHERE job = ?
			 FOR UPDATE SKIP LOCKED`,
			job,
		).Scan(&lock).Error
		obsmetrics.Reconcile().ObserveDBLockWait(obsmetrics.LockResourceJobLocks, time.Since(lockStart))
		if err != nil {
			return err
		}
		if lock.Job == "" {
			return nil
		}

		now := s.clock.Now()
		if lock.LockedAt != nil && now.Sub(*lock.LockedAt) < s.leaseDuration() {
			return nil
		}
		if err := tx.WithContext(claimCtx).Exec(
			`UPDATE job_locks SET locked_at = ?, updated_at = ? WHERE job = ?`,
			now,
			now,
			job,
		).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (s *Scheduler) releaseJobLock(ctx context.Context, job string) {
	// The job context may already be past its deadline.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.WithContext(releaseCtx).Exec(
		`UPDATE job_locks SET locked_at = NULL, updated_at = ? WHERE job = ?`,
		s.clock.Now(),
		job,
	).Error; err != nil {
		s.log.Warn("failed to release job lock",
			zap.String("job", job),
			zap.Error(err),
		)
	}
}
