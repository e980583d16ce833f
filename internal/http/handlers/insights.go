package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/insight"
	"github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/http/response"
	"github.com/dx-junkyard/plura/internal/services"
)

type InsightHandler struct {
	insights services.InsightService
}

func NewInsightHandler(insights services.InsightService) *InsightHandler {
	return &InsightHandler{insights: insights}
}

// GET /api/v1/insights
//
// Public feed of approved cards, filterable by topic, tag, and free text.
func (h *InsightHandler) List(c *gin.Context) {
	filter := repos.InsightListFilter{
		Statuses: []string{insight.StatusApproved},
		Topic:    c.Query("topic"),
		Tag:      c.Query("tag"),
		Search:   c.Query("search"),
		Limit:    parseIntQuery(c, "limit", 50),
		Offset:   parseIntQuery(c, "offset", 0),
	}
	cards, err := h.insights.List(c.Request.Context(), filter)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"insights": cards, "count": len(cards)})
}

// GET /api/v1/insights/pending
func (h *InsightHandler) ListPending(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	cards, err := h.insights.ListPending(c.Request.Context(), userID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"insights": cards, "count": len(cards)})
}

// GET /api/v1/insights/:id
func (h *InsightHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_insight_id", err)
		return
	}
	card, err := h.insights.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if card == nil {
		response.RespondError(c, http.StatusNotFound, "insight_not_found", nil)
		return
	}
	response.RespondOK(c, card)
}

type decisionRequest struct {
	Approved bool `json:"approved"`
}

// POST /api/v1/insights/:id/decision
//
// Author-only. Approval publishes the card; both outcomes are terminal.
func (h *InsightHandler) Decide(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_insight_id", err)
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	card, err := h.insights.Decide(c.Request.Context(), userID, id, req.Approved)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if card == nil {
		response.RespondError(c, http.StatusNotFound, "insight_not_found", nil)
		return
	}
	response.RespondOK(c, gin.H{"id": card.ID, "status": card.Status})
}

// POST /api/v1/insights/:id/thanks
func (h *InsightHandler) Thanks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_insight_id", err)
		return
	}
	count, err := h.insights.Thanks(c.Request.Context(), id)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"id": id, "thanks_count": count})
}
