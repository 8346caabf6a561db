package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/provwatch/internal/clock"
	runledgerdomain "github.com/smallbiznis/provwatch/internal/runledger/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  runledgerdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  runledgerdomain.Repository
}

func NewService(p ServiceParam) runledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("runledger.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Begin implements domain.Service.
func (s *Service) Begin(ctx context.Context, job string) (snowflake.ID, error) {
	now := s.clock.Now()
	run := &runledgerdomain.AnalysisRun{
		ID:        s.genID.Generate(),
		Job:       job,
		StartedAt: now,
		Status:    runledgerdomain.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, run); err != nil {
		return 0, err
	}
	return run.ID, nil
}

// Complete implements domain.Service.
func (s *Service) Complete(ctx context.Context, runID snowflake.ID, counts runledgerdomain.RunCounts) error {
	return s.repo.MarkCompleted(ctx, s.db, runID, counts, s.clock.Now())
}

// Fail implements domain.Service.
func (s *Service) Fail(ctx context.Context, runID snowflake.ID, runErr error) error {
	message := "unknown failure"
	if runErr != nil {
		message = runErr.Error()
	}
	// The original run context may already be dead.
	return s.repo.MarkFailed(context.WithoutCancel(ctx), s.db, runID, message, s.clock.Now())
}

// ListRecent implements domain.Service.
func (s *Service) ListRecent(ctx context.Context, job string, limit int) ([]runledgerdomain.AnalysisRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRecent(ctx, s.db, job, limit)
}
