package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/http/response"
	"github.com/dx-junkyard/plura/internal/services"
)

type ConversationHandler struct {
	conversation services.ConversationService
}

func NewConversationHandler(conversation services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversation: conversation}
}

type conversationRequest struct {
	Message               string                 `json:"message"`
	ThreadID              *uuid.UUID             `json:"thread_id,omitempty"`
	ModeOverride          string                 `json:"mode_override,omitempty"`
	ResearchApproved      bool                   `json:"research_approved,omitempty"`
	ResearchPlanConfirmed bool                   `json:"research_plan_confirmed,omitempty"`
	ResearchPlan          *services.ResearchPlan `json:"research_plan,omitempty"`
}

// POST /api/v1/conversation/message
func (h *ConversationHandler) Message(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	reply, err := h.conversation.HandleTurn(c.Request.Context(), &services.TurnRequest{
		UserID:   userID,
		Message:  req.Message,
		ThreadID: req.ThreadID,
		Flags: services.TurnFlags{
			ModeOverride:          req.ModeOverride,
			ResearchApproved:      req.ResearchApproved,
			ResearchPlanConfirmed: req.ResearchPlanConfirmed,
			ResearchPlan:          req.ResearchPlan,
		},
	})
	if err != nil {
		if services.IsInvalidInput(err) {
			response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, reply)
}
