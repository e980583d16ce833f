package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/jobs/runtime"
	"github.com/dx-junkyard/plura/internal/observability"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/pkg/utils"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

// Worker polls the job_run table and dispatches claimed runs to registered
// handlers. Each lane gets its own pool so heavy research work can never
// starve the sub-minute analysis jobs.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
	}
}

func (w *Worker) Start(ctx context.Context) {
	fast := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, w.log)
	heavy := utils.GetEnvAsInt("WORKER_HEAVY_CONCURRENCY", 2, w.log)
	if fast < 1 {
		fast = 1
	}
	if heavy < 1 {
		heavy = 1
	}
	w.log.Info("Starting job worker pools", "fast_concurrency", fast, "heavy_concurrency", heavy)

	for i := 0; i < fast; i++ {
		go w.runLoop(ctx, jobs.LaneFast, i+1)
	}
	for i := 0; i < heavy; i++ {
		go w.runLoop(ctx, jobs.LaneHeavy, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, lane string, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	const maxAttempts = 5
	retryDelay := 30 * time.Second
	staleRunning := 30 * time.Minute

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "lane", lane, "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, lane, maxAttempts, retryDelay, staleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "lane", lane, "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}

			h, ok := w.registry.Get(job.JobType)
			jc := runtime.NewContext(ctx, w.db, job, w.repo)

			if !ok {
				w.log.Warn("No handler registered for job_type",
					"lane", lane,
					"worker_id", workerID,
					"job_type", job.JobType,
					"job_id", job.ID,
				)
				jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
				continue
			}

			started := time.Now()
			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Job handler panic",
							"lane", lane,
							"worker_id", workerID,
							"job_id", job.ID,
							"job_type", job.JobType,
							"panic", r,
						)
						jc.Fail("panic", errFromRecover(r))
					}
				}()

				if runErr := h.Run(jc); runErr != nil {
					// Most pipelines call jc.Fail themselves; this is a safety net.
					jc.Fail("run", runErr)
				}
			}()
			observability.Current().ObserveJob(job.JobType, lane, jc.FinalStatus(), time.Since(started))
		}
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: " + fmt.Sprint(e.Val) }
