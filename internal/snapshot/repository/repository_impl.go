package repository

import (
	"context"

	snapshotdomain "github.com/smallbiznis/provwatch/internal/snapshot/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() snapshotdomain.Repository {
	return &repo{}
}

func (r *repo) FindLatestByRecordID(ctx context.Context, db *gorm.DB, recordID string) (*snapshotdomain.Snapshot, error) {
	var snapshot snapshotdomain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT id, record_id, captured_at, change_kind, status, request_action,
			account_id, account_name, name, last_modified_at, payload, created_at
		FROM snapshots
		WHERE record_id = ?
		ORDER BY captured_at DESC
		LIMIT 1`,
		recordID,
	).Scan(&snapshot).Error
	if err != nil {
		return nil, err
	}
	if snapshot.ID == 0 {
		return nil, nil
	}
	return &snapshot, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snapshot *snapshotdomain.Snapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO snapshots (
			id, record_id, captured_at, change_kind, status, request_action,
			account_id, account_name, name, last_modified_at, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID,
		snapshot.RecordID,
		snapshot.CapturedAt,
		snapshot.ChangeKind,
		snapshot.Status,
		snapshot.RequestAction,
		snapshot.AccountID,
		snapshot.AccountName,
		snapshot.Name,
		snapshot.LastModifiedAt,
		snapshot.Payload,
		snapshot.CreatedAt,
	).Error
}

func (r *repo) ListByRecordID(ctx context.Context, db *gorm.DB, recordID string, limit int) ([]snapshotdomain.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var snapshots []snapshotdomain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT id, record_id, captured_at, change_kind, status, request_action,
			account_id, account_name, name, last_modified_at, payload, created_at
		FROM snapshots
		WHERE record_id = ?
		ORDER BY captured_at DESC
		LIMIT ?`,
		recordID,
		limit,
	).Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
