package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/provwatch/internal/clock"
	runledgerdomain "github.com/smallbiznis/provwatch/internal/runledger/domain"
	"github.com/smallbiznis/provwatch/internal/runledger/repository"
)

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE analysis_runs (
			id INTEGER PRIMARY KEY,
			job TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			records_scanned INTEGER DEFAULT 0,
			entitlements_scanned INTEGER DEFAULT 0,
			findings_reportable INTEGER DEFAULT 0,
			findings_superseded INTEGER DEFAULT 0,
			findings_extended INTEGER DEFAULT 0,
			snapshots_written INTEGER DEFAULT 0,
			status_changes INTEGER DEFAULT 0,
			other_changes INTEGER DEFAULT 0,
			parse_failures INTEGER DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error)
	return db
}

func newLedgerService(t *testing.T, db *gorm.DB, fakeClock *clock.FakeClock) runledgerdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  repository.Provide(),
	})
}

func TestBeginWritesRunningRow(t *testing.T) {
	db := setupLedgerDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	svc := newLedgerService(t, db, fakeClock)

	runID, err := svc.Begin(context.Background(), "snapshot_diff")
	require.NoError(t, err)
	require.NotZero(t, runID)

	var run runledgerdomain.AnalysisRun
	require.NoError(t, db.Raw(`SELECT * FROM analysis_runs WHERE id = ?`, runID).Scan(&run).Error)
	require.Equal(t, "snapshot_diff", run.Job)
	require.Equal(t, runledgerdomain.RunStatusRunning, run.Status)
	require.Nil(t, run.CompletedAt)
}

func TestCompleteStoresCounts(t *testing.T) {
	db := setupLedgerDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	svc := newLedgerService(t, db, fakeClock)

	runID, err := svc.Begin(context.Background(), "expiration_analysis")
	require.NoError(t, err)

	fakeClock.Advance(42 * time.Second)
	require.NoError(t, svc.Complete(context.Background(), runID, runledgerdomain.RunCounts{
		RecordsScanned:      120,
		EntitlementsScanned: 450,
		FindingsReportable:  7,
		FindingsSuperseded:  3,
		FindingsExtended:    2,
		ParseFailures:       1,
	}))

	var run runledgerdomain.AnalysisRun
	require.NoError(t, db.Raw(`SELECT * FROM analysis_runs WHERE id = ?`, runID).Scan(&run).Error)
	require.Equal(t, runledgerdomain.RunStatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.Equal(t, 120, run.RecordsScanned)
	require.Equal(t, 450, run.EntitlementsScanned)
	require.Equal(t, 7, run.FindingsReportable)
	require.Equal(t, 3, run.FindingsSuperseded)
	require.Equal(t, 2, run.FindingsExtended)
	require.Equal(t, 1, run.ParseFailures)
}

func TestFailStoresError(t *testing.T) {
	db := setupLedgerDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	svc := newLedgerService(t, db, fakeClock)

	runID, err := svc.Begin(context.Background(), "snapshot_diff")
	require.NoError(t, err)

	require.NoError(t, svc.Fail(context.Background(), runID, errors.New("source returned 503")))

	var run runledgerdomain.AnalysisRun
	require.NoError(t, db.Raw(`SELECT * FROM analysis_runs WHERE id = ?`, runID).Scan(&run).Error)
	require.Equal(t, runledgerdomain.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	require.Equal(t, "source returned 503", *run.Error)
}

func TestCompleteDoesNotOverwriteFailedRun(t *testing.T) {
	db := setupLedgerDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	svc := newLedgerService(t, db, fakeClock)

	runID, err := svc.Begin(context.Background(), "snapshot_diff")
	require.NoError(t, err)
	require.NoError(t, svc.Fail(context.Background(), runID, errors.New("boom")))
	require.NoError(t, svc.Complete(context.Background(), runID, runledgerdomain.RunCounts{RecordsScanned: 9}))

	var run runledgerdomain.AnalysisRun
	require.NoError(t, db.Raw(`SELECT * FROM analysis_runs WHERE id = ?`, runID).Scan(&run).Error)
	require.Equal(t, runledgerdomain.RunStatusFailed, run.Status)
	require.Equal(t, 0, run.RecordsScanned)
}

func TestListRecentFiltersByJob(t *testing.T) {
	db := setupLedgerDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	svc := newLedgerService(t, db, fakeClock)

	for i := 0; i < 3; i++ {
		_, err := svc.Begin(context.Background(), "snapshot_diff")
		require.NoError(t, err)
		fakeClock.Advance(time.Minute)
	}
	_, err := svc.Begin(context.Background(), "expiration_analysis")
	require.NoError(t, err)

	diffs, err := svc.ListRecent(context.Background(), "snapshot_diff", 10)
	require.NoError(t, err)
	require.Len(t, diffs, 3)
	require.True(t, diffs[0].StartedAt.After(diffs[1].StartedAt))

	all, err := svc.ListRecent(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
}
