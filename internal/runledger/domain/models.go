// Package domain contains the analysis run ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RunStatus is the lifecycle state of one job execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AnalysisRun is one ledger row per job execution. The begin row is
// written before the run's side effects, so a crash mid-run shows up
// as a row stuck in running with no completion.
type AnalysisRun struct {
	ID                  snowflake.ID `gorm:"primaryKey"`
	Job                 string       `gorm:"type:text;not null"`
	StartedAt           time.Time    `gorm:"not null"`
	CompletedAt         *time.Time   `gorm:""`
	RecordsScanned      int          `gorm:"not null;default:0"`
	EntitlementsScanned int          `gorm:"not null;default:0"`
	FindingsReportable  int          `gorm:"not null;default:0"`
	FindingsSuperseded  int          `gorm:"not null;default:0"`
	FindingsExtended    int          `gorm:"not null;default:0"`
	SnapshotsWritten    int          `gorm:"not null;default:0"`
	StatusChanges       int          `gorm:"not null;default:0"`
	OtherChanges        int          `gorm:"not null;default:0"`
	ParseFailures       int          `gorm:"not null;default:0"`
	Status              RunStatus    `gorm:"type:text;not null"`
	Error               *string      `gorm:"type:text"`
	CreatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AnalysisRun) TableName() string { return "analysis_runs" }

// RunCounts is everything a finished run reports back to the ledger.
type RunCounts struct {
	RecordsScanned      int
	EntitlementsScanned int
	FindingsReportable  int
	FindingsSuperseded  int
	FindingsExtended    int
	SnapshotsWritten    int
	StatusChanges       int
	OtherChanges        int
	ParseFailures       int
}
