package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"

	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
)

// ListFindingsRequest filters the reportable finding listing.
type ListFindingsRequest struct {
	AccountID string
	Limit     int
}

type Service interface {
	// AnalyzeAndStore recomputes the expiration finding set for the
	// whole record universe and replaces the prior run's findings.
	AnalyzeAndStore(ctx context.Context, runID snowflake.ID, records []recorddomain.ProvisioningRecord) (Result, error)
	ListReportable(ctx context.Context, req ListFindingsRequest) ([]ExpirationFinding, error)
}
