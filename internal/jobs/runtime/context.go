package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
)

/*
The execution contract between the job system and all pipeline code.
runtime.Context is a capability-scoped execution handle for a single job run.
It wraps:
	- The database handle,
	- The mutable job_run row,
	- The append-only event ledger,
	- And the only sanctioned ways to report progress or terminate execution
Struct:
	- Ctx: request-scoped context.Context (timeouts, cancellation)
	- DB: DB handle (used by pipelines)
	- Job: the job_run row in memory
	- payload: decoded job input
*Pipelines never touch job_run directly. They must go through this object.*
*/

type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *jobs.JobRun
	Repo    repos.JobRunRepo
	payload map[string]any
}

/*
NewContext constructs a runtime.Context for a claimed job execution.
It eagerly decodes the job payload JSON so handlers can access inputs via
Payload()/PayloadUUID(). A payload decode failure is non-fatal here; handlers
validate required fields themselves.
*/
func NewContext(ctx context.Context, db *gorm.DB, job *jobs.JobRun, repo repos.JobRunRepo) *Context {
	c := &Context{
		Ctx:  ctx,
		DB:   db,
		Job:  job,
		Repo: repo,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

/*
Payload returns the decoded payload map for this job execution.
Guarantees:
	- Never returns nil (returns an empty map if payload is unset/unparseable)
	- The map represents the JSON object stored on Job.Payload, not Job.Result
*/
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

/*
PayloadUUID reads a payload field by key and attempts to parse it as a UUID.
Returns:
	- (uuid, true) if key exists and parses cleanly as a non-empty UUID string
	- (uuid.Nil, false) if missing, nil, or not parseable
This keeps UUID validation out of pipelines and makes payload parsing uniform.
*/
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadString reads a payload field by key as a trimmed string.
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

/*
Update applies arbitrary field updates to the underlying job_run row in
storage, guarded by "UnlessStatus(canceled)".
Intended use:
	- low-level state writes (e.g., pipeline state snapshots into result)
	- rare custom transitions not covered by Progress/Fail/Succeed
Prefer Progress/Fail/Succeed for lifecycle transitions so invariants remain
centralized.
*/
func (c *Context) Update(updates map[string]any) error {
	if c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, []string{jobs.StatusCanceled}, toIfaceMap(updates))
	return err
}

/*
Progress publishes a non-terminal status update for this job run.
What it does:
	- Persists stage/progress + heartbeat timestamps into job_run,
	  guarded so canceled jobs are not overwritten.
	- Updates the in-memory c.Job fields to match.
	- Appends a progress event so polling clients see the transition.
*/
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
		// status remains whatever it is in DB ("running" after claim)
	}

	c.appendEvent(ctx, jobs.JobEventProgress, jobs.StatusRunning, stage, pct, msg, nil)
}

/*
Fail marks this job run as terminally failed and records an error message.
What it does:
	- Sets status=failed, stage=<stage>, error=<err>, last_error_at=now
	- Clears locked_at so other workers won't treat it as in-progress
	- Updates in-memory job object
	- Appends a 'failed' ledger event
Guarding:
	- Uses UpdateFieldsUnlessStatus(..., ["canceled"]) so a canceled job is
	  not overwritten
	- If the update is rejected, exits without writing the ledger event
Note the retry loop in the worker re-queues failed runs below the attempt
limit, so "failed" here is terminal for this attempt, not for the run.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":        jobs.StatusFailed,
			"stage":         stage,
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = jobs.StatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}

	c.appendEvent(ctx, jobs.JobEventFailed, jobs.StatusFailed, stage, 0, msg, nil)
}

/*
Succeed marks this job run as terminally completed and persists a result payload.
What it does:
	- Sets status=completed, stage=<finalStage>, progress=100
	- Clears error, clears locked_at, updates heartbeat
	- Serializes 'result' as JSON and stores it in job_run.result
	- Updates in-memory job object
	- Appends a 'succeeded' ledger event
Guarding:
	- Uses UpdateFieldsUnlessStatus(..., ["canceled"]) so a canceled job is
	  not overwritten
	- If the update is rejected, exits without writing the ledger event
*/
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{jobs.StatusCanceled}, map[string]interface{}{
			"status":       jobs.StatusCompleted,
			"stage":        finalStage,
			"progress":     100,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = jobs.StatusCompleted
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	c.appendEvent(ctx, jobs.JobEventSucceeded, jobs.StatusCompleted, finalStage, 100, "", res)
}

// FinalStatus reports the in-memory status after a handler returns,
// used by the worker for per-run accounting.
func (c *Context) FinalStatus() string {
	if c == nil || c.Job == nil {
		return ""
	}
	return c.Job.Status
}

func (c *Context) appendEvent(ctx context.Context, kind jobs.JobEventKind, status, stage string, pct int, msg string, data datatypes.JSON) {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return
	}
	_ = c.Repo.AppendEvent(dbctx.Context{Ctx: ctx}, &jobs.JobRunEvent{
		JobID:       c.Job.ID,
		OwnerUserID: c.Job.OwnerUserID,
		JobType:     c.Job.JobType,
		Kind:        string(kind),
		Status:      status,
		Stage:       stage,
		Progress:    pct,
		Message:     msg,
		Data:        data,
	})
}

func toIfaceMap(in map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
