package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/http/response"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
)

type TaskHandler struct {
	jobRuns repos.JobRunRepo
}

func NewTaskHandler(jobRuns repos.JobRunRepo) *TaskHandler {
	return &TaskHandler{jobRuns: jobRuns}
}

// GET /api/v1/tasks/:id
//
// Polling surface for background tasks, primarily deep research.
func (h *TaskHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}

	job, err := h.jobRuns.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if job == nil || job.OwnerUserID != userID {
		response.RespondError(c, http.StatusNotFound, "task_not_found", nil)
		return
	}

	payload := gin.H{
		"task_id": job.ID,
		"type":    job.JobType,
		"status":  job.Status,
	}
	if job.EntityID != nil {
		payload["result_log_id"] = *job.EntityID
	}
	if job.Error != "" {
		payload["error"] = "調査に失敗しました。もう一度お試しください。"
	}
	c.Header("Cache-Control", "no-store")
	response.RespondOK(c, payload)
}
