package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// ReplaceAll removes every finding from prior runs and inserts the
	// given run's findings. Callers run it inside one transaction.
	ReplaceAll(ctx context.Context, db *gorm.DB, runID snowflake.ID, findings []ExpirationFinding) error
	ListReportable(ctx context.Context, db *gorm.DB, accountID string, limit int) ([]ExpirationFinding, error)
}
