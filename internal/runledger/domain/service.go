package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Begin writes the ledger row synchronously, before the run's side
	// effects.
	Begin(ctx context.Context, job string) (snowflake.ID, error)
	Complete(ctx context.Context, runID snowflake.ID, counts RunCounts) error
	Fail(ctx context.Context, runID snowflake.ID, runErr error) error
	ListRecent(ctx context.Context, job string, limit int) ([]AnalysisRun, error)
}
