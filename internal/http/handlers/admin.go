package handlers

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/jobs"
	"github.com/dx-junkyard/plura/internal/http/response"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

const reprocessBatchLimit = 100

type AdminHandler struct {
	log     *logger.Logger
	entries repos.EntryRepo
	jobRuns repos.JobRunRepo
}

func NewAdminHandler(baseLog *logger.Logger, entries repos.EntryRepo, jobRuns repos.JobRunRepo) *AdminHandler {
	return &AdminHandler{
		log:     baseLog.With("handler", "AdminHandler"),
		entries: entries,
		jobRuns: jobRuns,
	}
}

// POST /api/v1/admin/reprocess
//
// Re-enqueues refinement for analyzed entries that never produced a card,
// typically after a prompt or scoring change. Idempotent: the pipeline's
// processed flag and the per-source card uniqueness absorb duplicates.
func (h *AdminHandler) Reprocess(c *gin.Context) {
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	entries, err := h.entries.ListUnprocessed(dbc, reprocessBatchLimit)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if len(entries) == 0 {
		response.RespondOK(c, gin.H{"enqueued": 0})
		return
	}

	runs := make([]*jobs.JobRun, 0, len(entries))
	for _, e := range entries {
		threadID := e.RootThreadID()
		payload, _ := json.Marshal(map[string]any{"entry_id": e.ID.String()})
		runs = append(runs, &jobs.JobRun{
			OwnerUserID: e.UserID,
			JobType:     jobs.TypeRefineInsight,
			EntityType:  "entry",
			EntityID:    &e.ID,
			ThreadID:    &threadID,
			Payload:     datatypes.JSON(payload),
		})
	}

	created, err := h.jobRuns.Create(dbc, runs)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	h.log.Info("reprocess batch enqueued", "count", len(created))
	response.RespondOK(c, gin.H{"enqueued": len(created)})
}
