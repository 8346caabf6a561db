package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/provwatch/internal/clock"
	expirationdomain "github.com/smallbiznis/provwatch/internal/expiration/domain"
	obsmetrics "github.com/smallbiznis/provwatch/internal/observability/metrics"
	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
	runledgerdomain "github.com/smallbiznis/provwatch/internal/runledger/domain"
	snapshotdomain "github.com/smallbiznis/provwatch/internal/snapshot/domain"
)

const (
	JobSnapshotDiff       = "snapshot_diff"
	JobExpirationAnalysis = "expiration_analysis"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Source        recorddomain.Source
	SnapshotSvc   snapshotdomain.Service
	ExpirationSvc expirationdomain.Service
	LedgerSvc     runledgerdomain.Service
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        Config `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	source        recorddomain.Source
	snapshotSvc   snapshotdomain.Service
	expirationSvc expirationdomain.Service
	ledgerSvc     runledgerdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Source == nil || p.SnapshotSvc == nil || p.ExpirationSvc == nil || p.LedgerSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           cfg,
		genID:         p.GenID,
		clock:         p.Clock,
		source:        p.Source,
		snapshotSvc:   p.SnapshotSvc,
		expirationSvc: p.ExpirationSvc,
		ledgerSvc:     p.LedgerSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	recMetrics := obsmetrics.Reconcile()
	recMetrics.IncJobRun(name)

	err := fn(ctx)
	recMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: the ledger row already records the
	// failed run, the loop keeps ticking.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		recMetrics.IncJobTimeout(name)
	}
	recMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes the differ job then the analyzer job, each under
// its own timeout, lock row, and ledger entry.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobSnapshotDiff, s.isJobEnabled(JobSnapshotDiff), func(ctx context.Context) error {
			return s.runJob(ctx, JobSnapshotDiff, s.cfg.JobTimeout, s.SnapshotDiffJob)
		}},
		{JobExpirationAnalysis, s.isJobEnabled(JobExpirationAnalysis), func(ctx context.Context) error {
			return s.runJob(ctx, JobExpirationAnalysis, s.cfg.JobTimeout, s.ExpirationAnalysisJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	recMetrics := obsmetrics.Reconcile()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			recMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// If EnabledJobs is empty, all jobs are enabled by default (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// SnapshotDiffJob fetches the full record universe and captures
// changed records. A transport failure aborts before any write.
func (s *Scheduler) SnapshotDiffJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobSnapshotDiff)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	return s.withJobLock(ctx, JobSnapshotDiff, func(ctx context.Context) error {
		runID, err := s.ledgerSvc.Begin(ctx, JobSnapshotDiff)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.run.begin_failed", JobSnapshotDiff, err)
			return err
		}

		records, err := s.source.FetchAll(ctx)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.source.fetch_failed", JobSnapshotDiff, err,
				zap.String("run_id", idString(runID)),
			)
			return s.failRun(ctx, runID, err)
		}

		summary, err := s.snapshotSvc.DetectAndCapture(ctx, records)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.snapshot.capture_failed", JobSnapshotDiff, err,
				zap.String("run_id", idString(runID)),
			)
			return s.failRun(ctx, runID, err)
		}

		run.AddProcessed(len(records))
		return s.ledgerSvc.Complete(ctx, runID, runledgerdomain.RunCounts{
			RecordsScanned:   len(records),
			SnapshotsWritten: summary.NewSnapshots,
			StatusChanges:    summary.StatusChanges,
			OtherChanges:     summary.OtherChanges,
			ParseFailures:    summary.ParseFailures,
		})
	})
}

// ExpirationAnalysisJob recomputes the finding set over a fresh fetch
// of the record universe and replaces the prior run's findings.
func (s *Scheduler) ExpirationAnalysisJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpirationAnalysis)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	return s.withJobLock(ctx, JobExpirationAnalysis, func(ctx context.Context) error {
		runID, err := s.ledgerSvc.Begin(ctx, JobExpirationAnalysis)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.run.begin_failed", JobExpirationAnalysis, err)
			return err
		}

		records, err := s.source.FetchAll(ctx)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.source.fetch_failed", JobExpirationAnalysis, err,
				zap.String("run_id", idString(runID)),
			)
			return s.failRun(ctx, runID, err)
		}

		result, err := s.expirationSvc.AnalyzeAndStore(ctx, runID, records)
		if err != nil {
			s.logJobError(ctx, run, "scheduler.expiration.analyze_failed", JobExpirationAnalysis, err,
				zap.String("run_id", idString(runID)),
			)
			return s.failRun(ctx, runID, err)
		}

		run.AddProcessed(result.Counts.RecordsScanned)
		return s.ledgerSvc.Complete(ctx, runID, runledgerdomain.RunCounts{
			RecordsScanned:      result.Counts.RecordsScanned,
			EntitlementsScanned: result.Counts.EntitlementsScanned,
			FindingsReportable:  result.Counts.Reportable,
			FindingsSuperseded:  result.Counts.Superseded,
			FindingsExtended:    result.Counts.Extended,
			ParseFailures:       result.Counts.ParseFailures,
		})
	})
}

// failRun marks the ledger row failed and returns the original error.
func (s *Scheduler) failRun(ctx context.Context, runID snowflake.ID, runErr error) error {
	if err := s.ledgerSvc.Fail(ctx, runID, runErr); err != nil {
		s.log.Warn("failed to record run failure",
			zap.String("run_id", idString(runID)),
			zap.Error(err),
		)
	}
	return runErr
}
