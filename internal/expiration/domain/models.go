// Package domain contains models for expiration findings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Disposition states why a finding is or is not actionable. Only
// reportable findings surface to consumers.
type Disposition string

const (
	DispositionReportable Disposition = "reportable"
	DispositionExtended   Disposition = "extended"
	DispositionSuperseded Disposition = "superseded"
)

// ExpirationFinding is one derived statement that a specific
// entitlement is expiring within the lookahead window. Findings are
// recomputed from scratch every run; the previous run's rows are
// replaced, never merged.
type ExpirationFinding struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	RunID             snowflake.ID `gorm:"not null;index"`
	AccountID         string       `gorm:"type:text;not null"`
	AccountName       string       `gorm:"type:text"`
	RecordID          string       `gorm:"type:text;not null"`
	RecordName        string       `gorm:"type:text"`
	Category          string       `gorm:"type:text;not null"`
	ProductCode       string       `gorm:"type:text;not null"`
	ProductName       string       `gorm:"type:text"`
	PackageName       string       `gorm:"type:text"`
	EndDate           time.Time    `gorm:"not null"`
	DaysUntilExpiry   int          `gorm:"not null"`
	Disposition       Disposition  `gorm:"type:text;not null"`
	ExtendingRecordID *string      `gorm:"type:text"`
	ExtendingEndDate  *time.Time   `gorm:""`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ExpirationFinding) TableName() string { return "expiration_findings" }

// Counts summarizes one analysis pass.
type Counts struct {
	RecordsScanned      int
	EntitlementsScanned int
	Reportable          int
	Superseded          int
	Extended            int
	ParseFailures       int
}

// Result carries the full finding set of one pass plus its counters.
type Result struct {
	Findings []ExpirationFinding
	Counts   Counts
}
