package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/http/response"
	"github.com/dx-junkyard/plura/internal/services"
)

type RecommendationHandler struct {
	matcher services.Matcher
}

func NewRecommendationHandler(matcher services.Matcher) *RecommendationHandler {
	return &RecommendationHandler{matcher: matcher}
}

type recommendationRequest struct {
	CurrentInput string   `json:"current_input"`
	ExcludeIDs   []string `json:"exclude_ids"`
}

// POST /api/v1/recommendations
//
// Serendipity lookup for the current draft input. Always 200; an empty
// result carries the trigger reason instead of an error.
func (h *RecommendationHandler) Match(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req recommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	exclude := make([]uuid.UUID, 0, len(req.ExcludeIDs))
	for _, raw := range req.ExcludeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		exclude = append(exclude, id)
	}

	result := h.matcher.Match(c.Request.Context(), userID, req.CurrentInput, exclude)
	response.RespondOK(c, result)
}
