package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/provwatch/internal/clock"
	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
	snapshotdomain "github.com/smallbiznis/provwatch/internal/snapshot/domain"
	"github.com/smallbiznis/provwatch/internal/snapshot/repository"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE snapshots (
			id INTEGER PRIMARY KEY,
			record_id TEXT NOT NULL,
			captured_at DATETIME NOT NULL,
			change_kind TEXT NOT NULL,
			status TEXT,
			request_action TEXT,
			account_id TEXT,
			account_name TEXT,
			name TEXT,
			last_modified_at DATETIME,
			payload TEXT,
			created_at DATETIME
		)
	`).Error)
	return db
}

func newTestService(t *testing.T, db *gorm.DB, fakeClock clock.Clock) snapshotdomain.Service {
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

func countSnapshots(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM snapshots`).Scan(&count).Error)
	return count
}

func testRecord(id string) recorddomain.ProvisioningRecord {
	return recorddomain.ProvisioningRecord{
		ID:             id,
		Name:           "PS-0001",
		AccountID:      "acct-1",
		AccountName:    "Acme",
		Status:         "Submitted",
		RequestAction:  "Onboard",
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		LastModifiedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		RawPayload:     `{"modelEntitlements":[{"productCode":"MDL-1"}]}`,
	}
}

func TestDetectAndCaptureInitial(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	summary, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{testRecord("rec-1")})
	require.NoError(t, err)
	require.Equal(t, 1, summary.NewSnapshots)
	require.Equal(t, 0, summary.StatusChanges)
	require.Equal(t, 0, summary.OtherChanges)

	var kind string
	require.NoError(t, db.Raw(`SELECT change_kind FROM snapshots WHERE record_id = ?`, "rec-1").Scan(&kind).Error)
	require.Equal(t, string(snapshotdomain.ChangeKindInitial), kind)
}

func TestDetectAndCaptureIdempotent(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	records := []recorddomain.ProvisioningRecord{testRecord("rec-1")}
	_, err := svc.DetectAndCapture(context.Background(), records)
	require.NoError(t, err)

	fakeClock.Advance(time.Hour)
	summary, err := svc.DetectAndCapture(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 0, summary.NewSnapshots)
	require.Equal(t, 1, countSnapshots(t, db))
}

func TestDetectAndCaptureStatusChangePrecedence(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	rec := testRecord("rec-1")
	_, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)

	fakeClock.Advance(time.Hour)
	rec.Status = "Completed"
	rec.Name = "PS-0001-amended"
	summary, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)
	require.Equal(t, 1, summary.StatusChanges)
	require.Equal(t, 0, summary.OtherChanges)

	var kind string
	require.NoError(t, db.Raw(
		`SELECT change_kind FROM snapshots WHERE record_id = ? ORDER BY captured_at DESC LIMIT 1`,
		"rec-1",
	).Scan(&kind).Error)
	require.Equal(t, string(snapshotdomain.ChangeKindStatusChange), kind)
}

func TestDetectAndCaptureFieldChange(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	rec := testRecord("rec-1")
	_, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)

	fakeClock.Advance(time.Hour)
	rec.AccountName = "Acme Holdings"
	summary, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)
	require.Equal(t, 0, summary.StatusChanges)
	require.Equal(t, 1, summary.OtherChanges)
}

func TestDetectAndCapturePayloadKeyOrderIsNotAChange(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	rec := testRecord("rec-1")
	rec.RawPayload = `{"a": 1, "b": 2}`
	_, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)

	fakeClock.Advance(time.Hour)
	rec.RawPayload = `{"b": 2, "a": 1}`
	summary, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)
	require.Equal(t, 0, summary.NewSnapshots)
	require.Equal(t, 1, countSnapshots(t, db))
}

func TestDetectAndCaptureModifiedTimestampIsAChangeSignal(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	rec := testRecord("rec-1")
	_, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)

	fakeClock.Advance(time.Hour)
	rec.LastModifiedAt = rec.LastModifiedAt.Add(24 * time.Hour)
	summary, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)
	require.Equal(t, 1, summary.OtherChanges)
}

func TestDetectAndCaptureMonotonicCapturedAt(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	rec := testRecord("rec-1")
	_, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)

	// Clock not advanced: a second change must still capture strictly later.
	rec.Status = "Completed"
	_, err = svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{rec})
	require.NoError(t, err)

	var capturedAt []time.Time
	require.NoError(t, db.Raw(
		`SELECT captured_at FROM snapshots WHERE record_id = ? ORDER BY captured_at ASC`,
		"rec-1",
	).Scan(&capturedAt).Error)
	require.Len(t, capturedAt, 2)
	require.True(t, capturedAt[1].After(capturedAt[0]))
}

func TestDetectAndCaptureParseFailureIsNotFatal(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	broken := testRecord("rec-broken")
	broken.RawPayload = `{"modelEntitlements": [`
	healthy := testRecord("rec-healthy")

	summary, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{broken, healthy})
	require.NoError(t, err)
	require.Equal(t, 1, summary.ParseFailures)
	require.Equal(t, 1, summary.NewSnapshots)

	var brokenRows, healthyRows int
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM snapshots WHERE record_id = ?`, "rec-broken").Scan(&brokenRows).Error)
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM snapshots WHERE record_id = ?`, "rec-healthy").Scan(&healthyRows).Error)
	require.Equal(t, 0, brokenRows)
	require.Equal(t, 1, healthyRows)
}

func TestDetectAndCaptureSkipsParseFailedRecordEntirely(t *testing.T) {
	db := setupTestDB(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, fakeClock)

	broken := testRecord("rec-broken")
	broken.RawPayload = `{"broken`

	summary, err := svc.DetectAndCapture(context.Background(), []recorddomain.ProvisioningRecord{broken})
	require.NoError(t, err)
	require.Equal(t, 1, summary.ParseFailures)
	require.Equal(t, 0, summary.NewSnapshots)

	var rows int
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM snapshots`).Scan(&rows).Error)
	require.Equal(t, 0, rows)
}
