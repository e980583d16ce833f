package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, runs []*jobs.JobRun) ([]*jobs.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.JobRun, error)
	GetLatestByEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*jobs.JobRun, error)

	// ClaimNextRunnable picks the oldest runnable job in the given lane:
	// queued, or failed with retry budget left after the backoff delay, or
	// running with a stale heartbeat. Jobs for a thread are withheld while
	// another job of the same type runs on that thread with a live
	// heartbeat, or while an older non-terminal sibling (queued, running,
	// or failed with retries left) has yet to finish. The second clause
	// keeps per-thread analysis in creation order across retry backoff:
	// entry N+1 must not be analyzed while entry N is waiting out its
	// retry delay.
	ClaimNextRunnable(dbc dbctx.Context, lane string, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*jobs.JobRun, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	HasRunnableForEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (bool, error)
	AppendEvent(dbc dbctx.Context, event *jobs.JobRunEvent) error
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) conn(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRunRepo) Create(dbc dbctx.Context, runs []*jobs.JobRun) ([]*jobs.JobRun, error) {
	if len(runs) == 0 {
		return []*jobs.JobRun{}, nil
	}
	for _, run := range runs {
		if run.Lane == "" {
			run.Lane = jobs.LaneForType(run.JobType)
		}
		if run.Status == "" {
			run.Status = jobs.StatusQueued
		}
	}
	if err := r.conn(dbc).WithContext(dbc.Ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*jobs.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run jobs.JobRun
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *jobRunRepo) GetLatestByEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*jobs.JobRun, error) {
	if ownerUserID == uuid.Nil || entityID == uuid.Nil || entityType == "" || jobType == "" {
		return nil, nil
	}
	var run jobs.JobRun
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Where("owner_user_id = ? AND entity_type = ? AND entity_id = ? AND job_type = ?", ownerUserID, entityType, entityID, jobType).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, lane string, maxAttempts int, retryDelay time.Duration, staleRunning time.Duration) (*jobs.JobRun, error) {
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *jobs.JobRun
	err := r.conn(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var run jobs.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("lane = ?", lane).
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND attempts < ?
            AND (last_error_at IS NULL OR last_error_at < ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, jobs.StatusQueued, jobs.StatusFailed, maxAttempts, retryCutoff, jobs.StatusRunning, staleCutoff).
			Where(`
        thread_id IS NULL
        OR NOT EXISTS (
          SELECT 1 FROM job_run other
          WHERE other.thread_id = job_run.thread_id
            AND other.job_type = job_run.job_type
            AND other.id <> job_run.id
            AND (
              (other.status = ? AND other.heartbeat_at >= ?)
              OR (
                other.created_at < job_run.created_at
                AND (
                  other.status IN (?, ?)
                  OR (other.status = ? AND other.attempts < ?)
                )
              )
            )
        )
      `, jobs.StatusRunning, staleCutoff,
				jobs.StatusQueued, jobs.StatusRunning, jobs.StatusFailed, maxAttempts).
			Order("created_at ASC")
		qErr := q.First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&jobs.JobRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":       jobs.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}

	q := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return r.conn(dbc).WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("id = ? AND status = ?", id, jobs.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *jobRunRepo) HasRunnableForEntity(dbc dbctx.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (bool, error) {
	if ownerUserID == uuid.Nil || entityID == uuid.Nil || entityType == "" || jobType == "" {
		return false, nil
	}
	var count int64
	err := r.conn(dbc).WithContext(dbc.Ctx).
		Model(&jobs.JobRun{}).
		Where("owner_user_id = ? AND entity_type = ? AND entity_id = ? AND job_type = ? AND status IN ?",
			ownerUserID, entityType, entityID, jobType, []string{jobs.StatusQueued, jobs.StatusRunning},
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *jobRunRepo) AppendEvent(dbc dbctx.Context, event *jobs.JobRunEvent) error {
	if event == nil {
		return nil
	}
	return r.conn(dbc).WithContext(dbc.Ctx).Create(event).Error
}
