package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos/testutil"
	domain "github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
)

const (
	testMaxAttempts  = 3
	testRetryDelay   = time.Minute
	testStaleRunning = 5 * time.Minute
)

func setRunCreatedAt(t *testing.T, tx *gorm.DB, id uuid.UUID, at time.Time) {
	t.Helper()
	if err := tx.Model(&domain.JobRun{}).Where("id = ?", id).Update("created_at", at).Error; err != nil {
		t.Fatalf("set created_at: %v", err)
	}
}

func TestCreateDefaultsLaneAndStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	created, err := repo.Create(dbc, []*domain.JobRun{
		{OwnerUserID: uuid.New(), JobType: domain.TypeContextAnalyze},
		{OwnerUserID: uuid.New(), JobType: domain.TypeDeepResearch},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created[0].Lane != domain.LaneFast || created[0].Status != domain.StatusQueued {
		t.Fatalf("context job lane=%s status=%s", created[0].Lane, created[0].Status)
	}
	if created[1].Lane != domain.LaneHeavy {
		t.Fatalf("research job lane=%s, want heavy", created[1].Lane)
	}
}

func TestClaimNextRunnablePicksOldestInLane(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	owner := uuid.New()

	newer := testutil.SeedJobRun(t, ctx, tx, owner, domain.TypeContextAnalyze, domain.StatusQueued)
	older := testutil.SeedJobRun(t, ctx, tx, owner, domain.TypeContextAnalyze, domain.StatusQueued)
	heavy := testutil.SeedJobRun(t, ctx, tx, owner, domain.TypeDeepResearch, domain.StatusQueued)

	base := time.Now().Add(-time.Hour)
	setRunCreatedAt(t, tx, older.ID, base)
	setRunCreatedAt(t, tx, newer.ID, base.Add(time.Minute))
	setRunCreatedAt(t, tx, heavy.ID, base)

	claimed, err := repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed == nil || claimed.ID != older.ID {
		t.Fatalf("claimed %+v, want oldest fast job %s", claimed, older.ID)
	}

	got, err := repo.GetByID(dbc, older.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusRunning || got.Attempts != 1 {
		t.Fatalf("after claim: status=%s attempts=%d", got.Status, got.Attempts)
	}
	if got.LockedAt == nil || got.HeartbeatAt == nil {
		t.Fatal("claim did not stamp locked_at/heartbeat_at")
	}
}

func TestClaimNextRunnableRetriesFailedAfterDelay(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	owner := uuid.New()

	run := testutil.SeedJobRun(t, ctx, tx, owner, domain.TypeContextAnalyze, domain.StatusFailed)

	recent := time.Now()
	if err := tx.Model(&domain.JobRun{}).Where("id = ?", run.ID).
		Updates(map[string]interface{}{"attempts": 1, "last_error_at": recent}).Error; err != nil {
		t.Fatalf("prep failed run: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed %s inside the backoff window", claimed.ID)
	}

	old := time.Now().Add(-2 * testRetryDelay)
	if err := tx.Model(&domain.JobRun{}).Where("id = ?", run.ID).
		Update("last_error_at", old).Error; err != nil {
		t.Fatalf("age failed run: %v", err)
	}

	claimed, err = repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable after backoff: %v", err)
	}
	if claimed == nil || claimed.ID != run.ID {
		t.Fatalf("claimed %+v, want aged failed run", claimed)
	}
}

func TestClaimNextRunnableSkipsExhaustedRetries(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	run := testutil.SeedJobRun(t, ctx, tx, uuid.New(), domain.TypeContextAnalyze, domain.StatusFailed)
	old := time.Now().Add(-time.Hour)
	if err := tx.Model(&domain.JobRun{}).Where("id = ?", run.ID).
		Updates(map[string]interface{}{"attempts": testMaxAttempts, "last_error_at": old}).Error; err != nil {
		t.Fatalf("prep exhausted run: %v", err)
	}

	claimed, err := repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed %s despite exhausted attempts", claimed.ID)
	}
}

func TestClaimNextRunnableSerializesPerThread(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	owner := uuid.New()
	threadID := uuid.New()
	entityID := uuid.New()

	fresh := time.Now()
	runs, err := repo.Create(dbc, []*domain.JobRun{
		{
			OwnerUserID: owner,
			JobType:     domain.TypeStructureAnalyze,
			EntityType:  "entry",
			EntityID:    &entityID,
			ThreadID:    &threadID,
			Status:      domain.StatusRunning,
			HeartbeatAt: &fresh,
		},
		{
			OwnerUserID: owner,
			JobType:     domain.TypeStructureAnalyze,
			EntityType:  "entry",
			EntityID:    &entityID,
			ThreadID:    &threadID,
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	setRunCreatedAt(t, tx, runs[0].ID, base)
	setRunCreatedAt(t, tx, runs[1].ID, base.Add(time.Minute))

	claimed, err := repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed %s while a sibling runs on the same thread", claimed.ID)
	}

	// The running sibling goes stale; it is reclaimed ahead of the newer
	// queued job so the thread keeps creation order.
	stale := time.Now().Add(-2 * testStaleRunning)
	if err := tx.Model(&domain.JobRun{}).Where("id = ?", runs[0].ID).
		Update("heartbeat_at", stale).Error; err != nil {
		t.Fatalf("age running sibling: %v", err)
	}

	claimed, err = repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable after staleness: %v", err)
	}
	if claimed == nil || claimed.ID != runs[0].ID {
		t.Fatalf("claimed %+v, want the stale older run %s", claimed, runs[0].ID)
	}
}

func TestClaimNextRunnableHoldsThreadDuringRetryBackoff(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	owner := uuid.New()
	threadID := uuid.New()
	firstEntry := uuid.New()
	secondEntry := uuid.New()

	runs, err := repo.Create(dbc, []*domain.JobRun{
		{
			OwnerUserID: owner,
			JobType:     domain.TypeStructureAnalyze,
			EntityType:  "entry",
			EntityID:    &firstEntry,
			ThreadID:    &threadID,
			Status:      domain.StatusFailed,
		},
		{
			OwnerUserID: owner,
			JobType:     domain.TypeStructureAnalyze,
			EntityType:  "entry",
			EntityID:    &secondEntry,
			ThreadID:    &threadID,
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	setRunCreatedAt(t, tx, runs[0].ID, base)
	setRunCreatedAt(t, tx, runs[1].ID, base.Add(time.Minute))
	if err := tx.Model(&domain.JobRun{}).Where("id = ?", runs[0].ID).
		Updates(map[string]interface{}{"attempts": 1, "last_error_at": time.Now()}).Error; err != nil {
		t.Fatalf("prep failed run: %v", err)
	}

	// The older job is inside its backoff window: not claimable itself,
	// and the newer queued job on the thread must wait for it.
	claimed, err := repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed %s while an older thread sibling awaits retry", claimed.ID)
	}

	aged := time.Now().Add(-2 * testRetryDelay)
	if err := tx.Model(&domain.JobRun{}).Where("id = ?", runs[0].ID).
		Update("last_error_at", aged).Error; err != nil {
		t.Fatalf("age failed run: %v", err)
	}

	claimed, err = repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable after backoff: %v", err)
	}
	if claimed == nil || claimed.ID != runs[0].ID {
		t.Fatalf("claimed %+v, want the older retried run %s", claimed, runs[0].ID)
	}

	// With the retry now running on a fresh heartbeat the newer job still
	// waits.
	claimed, err = repo.ClaimNextRunnable(dbc, domain.LaneFast, testMaxAttempts, testRetryDelay, testStaleRunning)
	if err != nil {
		t.Fatalf("ClaimNextRunnable while retry runs: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claimed %s while the retry is still running", claimed.ID)
	}
}

func TestUpdateFieldsUnlessStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	run := testutil.SeedJobRun(t, ctx, tx, uuid.New(), domain.TypeRefineInsight, domain.StatusRunning)

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, run.ID, []string{domain.StatusCanceled},
		map[string]interface{}{"progress": 50})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if !ok {
		t.Fatal("update on running job reported no rows")
	}

	if err := repo.UpdateFields(dbc, run.ID, map[string]interface{}{"status": domain.StatusCanceled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	ok, err = repo.UpdateFieldsUnlessStatus(dbc, run.ID, []string{domain.StatusCanceled},
		map[string]interface{}{"progress": 80})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus canceled: %v", err)
	}
	if ok {
		t.Fatal("canceled job accepted a progress update")
	}

	got, err := repo.GetByID(dbc, run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Progress != 50 {
		t.Fatalf("Progress=%d, want 50", got.Progress)
	}
}

func TestAppendEventAndLatestByEntity(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewJobRunRepo(db, testutil.Logger(t))

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	owner := uuid.New()
	entityID := uuid.New()

	runs, err := repo.Create(dbc, []*domain.JobRun{{
		OwnerUserID: owner,
		JobType:     domain.TypeDeepResearch,
		EntityType:  "entry",
		EntityID:    &entityID,
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	run := runs[0]

	if err := repo.AppendEvent(dbc, &domain.JobRunEvent{
		JobID:       run.ID,
		OwnerUserID: owner,
		JobType:     run.JobType,
		Kind:        string(domain.JobEventCreated),
		Status:      run.Status,
	}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	got, err := repo.GetLatestByEntity(dbc, owner, "entry", entityID, domain.TypeDeepResearch)
	if err != nil {
		t.Fatalf("GetLatestByEntity: %v", err)
	}
	if got == nil || got.ID != run.ID {
		t.Fatalf("GetLatestByEntity returned %+v", got)
	}

	miss, err := repo.GetLatestByEntity(dbc, uuid.New(), "entry", entityID, domain.TypeDeepResearch)
	if err != nil {
		t.Fatalf("GetLatestByEntity other owner: %v", err)
	}
	if miss != nil {
		t.Fatalf("other owner saw the run: %+v", miss)
	}
}
