package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/provwatch/internal/clock"
	"github.com/smallbiznis/provwatch/internal/config"
	expirationdomain "github.com/smallbiznis/provwatch/internal/expiration/domain"
	obsmetrics "github.com/smallbiznis/provwatch/internal/observability/metrics"
	recorddomain "github.com/smallbiznis/provwatch/internal/record/domain"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID     *snowflake.Node
	clock     clock.Clock
	repo      expirationdomain.Repository
	cfgHolder *config.AnalyzerConfigHolder
	metrics   *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      expirationdomain.Repository
	CfgHolder *config.AnalyzerConfigHolder
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) expirationdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("expiration.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		cfgHolder: p.CfgHolder,
		metrics:   p.Metrics,
	}
}

// AnalyzeAndStore implements domain.Service.
func (s *Service) AnalyzeAndStore(ctx context.Context, runID snowflake.ID, records []recorddomain.ProvisioningRecord) (expirationdomain.Result, error) {
	policy := s.cfgHolder.Current()
	now := s.clock.Now()

	groups := recorddomain.GroupByAccount(records)
	result := Analyze(groups, policy.LookbackYears, policy.WindowDays, now)

	for i := range result.Findings {
		result.Findings[i].ID = s.genID.Generate()
		result.Findings[i].RunID = runID
		result.Findings[i].CreatedAt = now
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.repo.ReplaceAll(ctx, tx, runID, result.Findings)
	})
	if err != nil {
		return expirationdomain.Result{}, err
	}

	s.metrics.RecordFindings(ctx, string(expirationdomain.DispositionReportable), result.Counts.Reportable)
	s.metrics.RecordFindings(ctx, string(expirationdomain.DispositionExtended), result.Counts.Extended)
	s.metrics.RecordFindings(ctx, string(expirationdomain.DispositionSuperseded), result.Counts.Superseded)
	obsmetrics.Reconcile().AddFindings(string(expirationdomain.DispositionReportable), result.Counts.Reportable)
	obsmetrics.Reconcile().AddFindings(string(expirationdomain.DispositionExtended), result.Counts.Extended)
	obsmetrics.Reconcile().AddFindings(string(expirationdomain.DispositionSuperseded), result.Counts.Superseded)

	s.log.Info("expiration analysis stored",
		zap.String("run_id", runID.String()),
		zap.Int("records_scanned", result.Counts.RecordsScanned),
		zap.Int("entitlements_scanned", result.Counts.EntitlementsScanned),
		zap.Int("reportable", result.Counts.Reportable),
		zap.Int("extended", result.Counts.Extended),
		zap.Int("superseded", result.Counts.Superseded),
		zap.Int("parse_failures", result.Counts.ParseFailures),
		zap.Duration("took", s.clock.Now().Sub(now)),
	)

	return result, nil
}

// ListReportable implements domain.Service.
func (s *Service) ListReportable(ctx context.Context, req expirationdomain.ListFindingsRequest) ([]expirationdomain.ExpirationFinding, error) {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	deadline, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.repo.ListReportable(deadline, s.db, req.AccountID, limit)
}
