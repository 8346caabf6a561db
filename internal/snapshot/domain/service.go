package domain

import (
	"context"

	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
)

// Summary reports what one differ pass wrote.
type Summary struct {
	NewSnapshots  int
	StatusChanges int
	OtherChanges  int
	ParseFailures int
}

// Changes is the number of rows written for records that already had a
// snapshot. Initial captures are not changes.
func (s Summary) Changes() int {
	return s.StatusChanges + s.OtherChanges
}

type Service interface {
	// DetectAndCapture compares every current record against its most
	// recent persisted snapshot and writes a new row only on change.
	// Running it twice over unchanged input writes zero rows the
	// second time.
	DetectAndCapture(ctx context.Context, records []recorddomain.ProvisioningRecord) (Summary, error)
	// History returns a record's snapshot trail, most recent first.
	History(ctx context.Context, recordID string, limit int) ([]Snapshot, error)
}
