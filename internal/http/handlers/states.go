package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/http/response"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
)

type StateHandler struct {
	states repos.UserStateRepo
}

func NewStateHandler(states repos.UserStateRepo) *StateHandler {
	return &StateHandler{states: states}
}

// GET /api/v1/users/me/states
func (h *StateHandler) ListMine(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	limit := parseIntQuery(c, "limit", 20)

	states, err := h.states.ListRecentByUser(dbctx.Context{Ctx: c.Request.Context()}, userID, limit)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"states": states, "count": len(states)})
}
