package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/data/repos"
	"github.com/dx-junkyard/plura/internal/domain/entry"
	"github.com/dx-junkyard/plura/internal/http/middleware"
	"github.com/dx-junkyard/plura/internal/http/response"
	"github.com/dx-junkyard/plura/internal/pkg/dbctx"
	"github.com/dx-junkyard/plura/internal/services"
)

const maxVoiceUploadBytes = 10 << 20

type LogHandler struct {
	entries       repos.EntryRepo
	conversation  services.ConversationService
	transcription services.TranscriptionService
}

func NewLogHandler(entries repos.EntryRepo, conversation services.ConversationService, transcription services.TranscriptionService) *LogHandler {
	return &LogHandler{
		entries:       entries,
		conversation:  conversation,
		transcription: transcription,
	}
}

type createLogRequest struct {
	Content     string     `json:"content"`
	ContentType string     `json:"content_type,omitempty"`
	ThreadID    *uuid.UUID `json:"thread_id,omitempty"`
}

// POST /api/v1/logs
func (h *LogHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req createLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	h.createEntry(c, userID, req.Content, req.ContentType, req.ThreadID)
}

// POST /api/v1/logs/voice
func (h *LogHandler) CreateVoice(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	if h.transcription == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "transcription_unavailable", nil)
		return
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "missing_audio", err)
		return
	}
	if fh.Size > maxVoiceUploadBytes {
		response.RespondError(c, http.StatusBadRequest, "audio_too_large", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_audio", err)
		return
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_audio", err)
		return
	}

	text, err := h.transcription.Transcribe(c.Request.Context(), audio, fh.Header.Get("Content-Type"))
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "transcription_failed", err)
		return
	}

	var threadID *uuid.UUID
	if v := c.PostForm("thread_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
			return
		}
		threadID = &id
	}
	h.createEntry(c, userID, text, entry.ContentTypeVoice, threadID)
}

func (h *LogHandler) createEntry(c *gin.Context, userID uuid.UUID, content, contentType string, threadID *uuid.UUID) {
	reply, err := h.conversation.HandleTurn(c.Request.Context(), &services.TurnRequest{
		UserID:      userID,
		Message:     content,
		ContentType: contentType,
		ThreadID:    threadID,
	})
	if err != nil {
		if services.IsInvalidInput(err) {
			response.RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		response.RespondFromError(c, err)
		return
	}

	payload := gin.H{
		"message":   "記録しました",
		"log_id":    reply.LogID,
		"thread_id": reply.ThreadID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if reply.Response != "" {
		payload["conversation_reply"] = reply.Response
	}
	if reply.RequiresResearchConsent {
		payload["requires_research_consent"] = true
	}
	if reply.BackgroundTask != nil {
		payload["research_log_id"] = reply.BackgroundTask.ResultLogID
	}
	response.RespondCreated(c, payload)
}

// GET /api/v1/logs/:id
//
// The sole polling surface for analysis completion: responses are never
// cacheable.
func (h *LogHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_log_id", err)
		return
	}

	e, err := h.entries.GetOwned(dbctx.Context{Ctx: c.Request.Context()}, userID, id)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if e == nil {
		response.RespondError(c, http.StatusNotFound, "log_not_found", nil)
		return
	}
	c.Header("Cache-Control", "no-store")
	response.RespondOK(c, e)
}

// GET /api/v1/logs
func (h *LogHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	filter := repos.EntryListFilter{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if v := c.Query("thread_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_thread_id", err)
			return
		}
		filter.ThreadID = &id
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_from", err)
			return
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_to", err)
			return
		}
		filter.To = &t
	}

	entries, err := h.entries.ListByUser(dbctx.Context{Ctx: c.Request.Context()}, userID, filter)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"logs": entries, "count": len(entries)})
}

// DELETE /api/v1/logs/:id
//
// Deletes the whole thread rooted at the entry.
func (h *LogHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_log_id", err)
		return
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	e, err := h.entries.GetOwned(dbc, userID, id)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	if e == nil {
		response.RespondError(c, http.StatusNotFound, "log_not_found", nil)
		return
	}

	deleted, err := h.entries.DeleteThread(dbc, userID, e.RootThreadID())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": deleted})
}

func parseIntQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
