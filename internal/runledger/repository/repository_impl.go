package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	runledgerdomain "github.com/smallbiznis/provwatch/internal/runledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() runledgerdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *runledgerdomain.AnalysisRun) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO analysis_runs (
			id, job, started_at, completed_at, records_scanned,
			entitlements_scanned, findings_reportable, findings_superseded,
			findings_extended, snapshots_written, status_changes,
			other_changes, parse_failures, status, error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Job,
		run.StartedAt,
		run.CompletedAt,
		run.RecordsScanned,
		run.EntitlementsScanned,
		run.FindingsReportable,
		run.FindingsSuperseded,
		run.FindingsExtended,
		run.SnapshotsWritten,
		run.StatusChanges,
		run.OtherChanges,
		run.ParseFailures,
		run.Status,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	).Error
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, counts runledgerdomain.RunCounts, completedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE analysis_runs SET
			status = ?,
			completed_at = ?,
			records_scanned = ?,
			entitlements_scanned = ?,
			findings_reportable = ?,
			findings_superseded = ?,
			findings_extended = ?,
			snapshots_written = ?,
			status_changes = ?,
			other_changes = ?,
			parse_failures = ?,
			updated_at = ?
		WHERE id = ? AND status = ?`,
		runledgerdomain.RunStatusCompleted,
		completedAt,
		counts.RecordsScanned,
		counts.EntitlementsScanned,
		counts.FindingsReportable,
		counts.FindingsSuperseded,
		counts.FindingsExtended,
		counts.SnapshotsWritten,
		counts.StatusChanges,
		counts.OtherChanges,
		counts.ParseFailures,
		completedAt,
		id,
		runledgerdomain.RunStatusRunning,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, completedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE analysis_runs SET
			status = ?,
			error = ?,
			completed_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ?`,
		runledgerdomain.RunStatusFailed,
		message,
		completedAt,
		completedAt,
		id,
		runledgerdomain.RunStatusRunning,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*runledgerdomain.AnalysisRun, error) {
	var run runledgerdomain.AnalysisRun
	err := db.WithContext(ctx).Raw(
		`SELECT id, job, started_at, completed_at, records_scanned,
			entitlements_scanned, findings_reportable, findings_superseded,
			findings_extended, snapshots_written, status_changes,
			other_changes, parse_failures, status, error, created_at, updated_at
		FROM analysis_runs
		WHERE id = ?`,
		id,
	).Scan(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, job string, limit int) ([]runledgerdomain.AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, job, started_at, completed_at, records_scanned,
			entitlements_scanned, findings_reportable, findings_superseded,
			findings_extended, snapshots_written, status_changes,
			other_changes, parse_failures, status, error, created_at, updated_at
		FROM analysis_runs`
	args := []interface{}{}
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	var runs []runledgerdomain.AnalysisRun
	err := db.WithContext(ctx).Raw(query, args...).Scan(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
