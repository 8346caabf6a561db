// Package domain contains persistence models for record snapshots.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ChangeKind classifies why a snapshot was written.
type ChangeKind string

const (
	ChangeKindInitial      ChangeKind = "initial"
	ChangeKindStatusChange ChangeKind = "status-change"
	ChangeKindFieldChange  ChangeKind = "field-change"
)

// Snapshot is one audit-trail row: a full copy of a record's tracked
// fields at capture time. Per RecordID, rows are strictly ordered by
// CapturedAt.
type Snapshot struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	RecordID       string         `gorm:"type:text;not null;index"`
	CapturedAt     time.Time      `gorm:"not null"`
	ChangeKind     ChangeKind     `gorm:"type:text;not null"`
	Status         string         `gorm:"type:text"`
	RequestAction  string         `gorm:"type:text"`
	AccountID      string         `gorm:"type:text"`
	AccountName    string         `gorm:"type:text"`
	Name           string         `gorm:"type:text"`
	LastModifiedAt *time.Time     `gorm:""`
	Payload        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Snapshot) TableName() string { return "snapshots" }
