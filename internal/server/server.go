package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/provwatch/internal/config"
	expirationdomain "github.com/smallbiznis/provwatch/internal/expiration/domain"
	"github.com/smallbiznis/provwatch/internal/observability"
	obsmiddleware "github.com/smallbiznis/provwatch/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/provwatch/internal/observability/metrics"
	obstracing "github.com/smallbiznis/provwatch/internal/observability/tracing"
	runledgerdomain "github.com/smallbiznis/provwatch/internal/runledger/domain"
	"github.com/smallbiznis/provwatch/internal/scheduler"
	snapshotdomain "github.com/smallbiznis/provwatch/internal/snapshot/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	snapshotSvc   snapshotdomain.Service
	expirationSvc expirationdomain.Service
	ledgerSvc     runledgerdomain.Service
	scheduler     *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	SnapshotSvc   snapshotdomain.Service
	ExpirationSvc expirationdomain.Service
	LedgerSvc     runledgerdomain.Service

	Scheduler *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		snapshotSvc:   p.SnapshotSvc,
		expirationSvc: p.ExpirationSvc,
		ledgerSvc:     p.LedgerSvc,
		scheduler:     p.Scheduler,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Findings --------
	api.GET("/findings", s.ListFindings)

	// -------- Snapshots --------
	api.GET("/records/:id/snapshots", s.GetRecordSnapshots)

	// -------- Runs --------
	api.GET("/runs", s.ListRuns)

	// -------- On-demand reconciliation --------
	api.POST("/reconcile", s.TriggerReconcile)
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	return obsmetrics.ClassifyJobErrorType(err), obsmetrics.ClassifyJobReason(err)
}
