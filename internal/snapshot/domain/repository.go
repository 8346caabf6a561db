package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindLatestByRecordID(ctx context.Context, db *gorm.DB, recordID string) (*Snapshot, error)
	Insert(ctx context.Context, db *gorm.DB, snapshot *Snapshot) error
	ListByRecordID(ctx context.Context, db *gorm.DB, recordID string, limit int) ([]Snapshot, error)
}
