package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *AnalysisRun) error
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, counts RunCounts, completedAt time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, completedAt time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AnalysisRun, error)
	ListRecent(ctx context.Context, db *gorm.DB, job string, limit int) ([]AnalysisRun, error)
}
