package service

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/provwatch/internal/clock"
	"github.com/smallbiznis/provwatch/internal/entitlement"
	obsmetrics "github.com/smallbiznis/provwatch/internal/observability/metrics"
	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
	snapshotdomain "github.com/smallbiznis/provwatch/internal/snapshot/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    snapshotdomain.Repository
	metrics *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    snapshotdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) snapshotdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("snapshot.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// DetectAndCapture implements domain.Service.
func (s *Service) DetectAndCapture(ctx context.Context, records []recorddomain.ProvisioningRecord) (snapshotdomain.Summary, error) {
	var summary snapshotdomain.Summary

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// An unreadable payload is noted and the record skipped; the
		// rest of the batch still gets compared.
		if res := entitlement.Normalize(rec.RawPayload); res.Failure != nil && res.Failure.Code != entitlement.FailureAbsentPayload {
			summary.ParseFailures++
			s.metrics.RecordParseFailure(ctx, res.Failure.Code)
			s.log.Warn("record payload unreadable",
				zap.String("record_id", rec.ID),
				zap.String("code", res.Failure.Code),
			)
			continue
		}

		latest, err := s.repo.FindLatestByRecordID(ctx, s.db, rec.ID)
		if err != nil {
			return summary, err
		}

		changeKind, changed := classifyChange(latest, rec)
		if !changed {
			continue
		}

		capturedAt := s.clock.Now()
		if latest != nil && !capturedAt.After(latest.CapturedAt) {
			// Snapshots per record are strictly ordered by capture time.
			capturedAt = latest.CapturedAt.Add(time.Millisecond)
		}

		snapshot := buildSnapshot(s.genID.Generate(), rec, changeKind, capturedAt)
		if err := s.repo.Insert(ctx, s.db, snapshot); err != nil {
			return summary, err
		}

		switch changeKind {
		case snapshotdomain.ChangeKindInitial:
			summary.NewSnapshots++
		case snapshotdomain.ChangeKindStatusChange:
			summary.NewSnapshots++
			summary.StatusChanges++
		case snapshotdomain.ChangeKindFieldChange:
			summary.NewSnapshots++
			summary.OtherChanges++
		}

		s.metrics.RecordSnapshotsWritten(ctx, string(changeKind), 1)
		obsmetrics.Reconcile().AddSnapshotsWritten(string(changeKind), 1)
	}

	return summary, nil
}

// History implements domain.Service.
func (s *Service) History(ctx context.Context, recordID string, limit int) ([]snapshotdomain.Snapshot, error) {
	if recordID == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.repo.ListByRecordID(ctx, s.db, recordID, limit)
}

// classifyChange compares the fixed tracked-field set. Status takes
// precedence over every other tracked field; LastModifiedAt is only a
// change signal.
func classifyChange(latest *snapshotdomain.Snapshot, rec recorddomain.ProvisioningRecord) (snapshotdomain.ChangeKind, bool) {
	if latest == nil {
		return snapshotdomain.ChangeKindInitial, true
	}
	if latest.Status != rec.Status {
		return snapshotdomain.ChangeKindStatusChange, true
	}
	if latest.RequestAction != rec.RequestAction ||
		latest.AccountID != rec.AccountID ||
		latest.AccountName != rec.AccountName ||
		latest.Name != rec.Name {
		return snapshotdomain.ChangeKindFieldChange, true
	}
	if !payloadEqual(latest.Payload, rec.RawPayload) {
		return snapshotdomain.ChangeKindFieldChange, true
	}
	if !timesEqual(latest.LastModifiedAt, rec.LastModifiedAt) {
		return snapshotdomain.ChangeKindFieldChange, true
	}
	return "", false
}

func buildSnapshot(id snowflake.ID, rec recorddomain.ProvisioningRecord, changeKind snapshotdomain.ChangeKind, capturedAt time.Time) *snapshotdomain.Snapshot {
	var lastModified *time.Time
	if !rec.LastModifiedAt.IsZero() {
		ts := rec.LastModifiedAt
		lastModified = &ts
	}
	return &snapshotdomain.Snapshot{
		ID:             id,
		RecordID:       rec.ID,
		CapturedAt:     capturedAt,
		ChangeKind:     changeKind,
		Status:         rec.Status,
		RequestAction:  rec.RequestAction,
		AccountID:      rec.AccountID,
		AccountName:    rec.AccountName,
		Name:           rec.Name,
		LastModifiedAt: lastModified,
		Payload:        encodePayload(rec.RawPayload),
		CreatedAt:      capturedAt,
	}
}

// encodePayload stores the raw payload as jsonb. A payload that is not
// valid JSON is kept verbatim as a JSON string literal.
func encodePayload(raw string) datatypes.JSON {
	if raw == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return datatypes.JSON(raw)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

// payloadEqual compares payloads structurally. jsonb storage does not
// preserve formatting or key order, so byte equality is not usable.
func payloadEqual(stored datatypes.JSON, raw string) bool {
	current := encodePayload(raw)
	if len(stored) == 0 || len(current) == 0 {
		return len(stored) == 0 && len(current) == 0
	}
	var a, b interface{}
	if err := json.Unmarshal(stored, &a); err != nil {
		return string(stored) == string(current)
	}
	if err := json.Unmarshal(current, &b); err != nil {
		return string(stored) == string(current)
	}
	return reflect.DeepEqual(a, b)
}

func timesEqual(stored *time.Time, current time.Time) bool {
	if stored == nil {
		return current.IsZero()
	}
	if current.IsZero() {
		return false
	}
	return stored.Equal(current)
}
