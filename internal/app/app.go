package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/db"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/observability"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	observability.Init(log)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "plura",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, reposet, serviceset)
	router := wireRouter(log, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		otelShutdown: otelShutdown,
	}, nil
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	a.startReevaluateTicker(ctx)

	if m := observability.Current(); m != nil {
		m.StartQueueDepthSampler(ctx, a.DB, a.Log)
		m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}
}

// startReevaluateTicker enqueues the periodic draft re-scoring job. The
// pipeline itself is idempotent, so overlapping runs only waste work.
func (a *App) startReevaluateTicker(ctx context.Context) {
	if a.Repos.JobRuns == nil {
		return
	}
	interval := a.Cfg.ReevaluateInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := a.Repos.JobRuns.Create(dbctx.Context{Ctx: ctx}, []*jobs.JobRun{{
					JobType: jobs.TypePolicyReevaluate,
				}})
				if err != nil {
					a.Log.Warn("policy reevaluate enqueue failed", "error", err)
				}
			}
		}
	}()
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(shutdownCtx)
		cancel()
	}
	if a.Services.Cache != nil {
		_ = a.Services.Cache.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
