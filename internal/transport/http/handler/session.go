package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"datachat/internal/app"
	"datachat/internal/transport/http/response"
)

type SessionHandler struct {
	sessions *app.SessionService
	messages *app.MessageService
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"max=128"`
}

func NewSessionHandler(sessions *app.SessionService, messages *app.MessageService) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		messages: messages,
	}
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), app.CreateSessionInput{
		UserID: userID,
		Title:  req.Title,
	})
	if err != nil {
		writeError(c, err, "create session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	summaries, err := h.sessions.ListSessions(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list sessions failed")
		return
	}
	response.OK(c, summaries)
}

// Get returns the assembled session. Artifacts are included unless include_artifacts=false;
// display_only=true drops internal turns.
func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	session, err := h.sessions.GetCompleteSession(c.Request.Context(), c.Param("session_id"), userID, app.AssembleOptions{
		IncludeArtifacts: queryBool(c, "include_artifacts", true),
		DisplayOnly:      queryBool(c, "display_only", false),
	})
	if err != nil {
		writeError(c, err, "get session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Summary(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := h.sessions.GetSessionSummary(c.Request.Context(), c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err, "get session summary failed")
		return
	}
	response.OK(c, summary)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")
	deleted, err := h.sessions.DeleteSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{
		"deleted_session_id": sessionID,
		"deleted_keys":       deleted,
	})
}

func (h *SessionHandler) GetMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	msg, err := h.messages.GetMessageWithArtifacts(c.Request.Context(), c.Param("message_id"), c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err, "get message failed")
		return
	}
	response.OK(c, msg)
}

func (h *SessionHandler) DeleteMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	messageID := c.Param("message_id")
	deleted, err := h.messages.DeleteMessage(c.Request.Context(), messageID, c.Param("session_id"), userID)
	if err != nil {
		writeError(c, err, "delete message failed")
		return
	}
	response.OK(c, gin.H{
		"deleted_message_id": messageID,
		"deleted_keys":       deleted,
	})
}

func queryBool(c *gin.Context, key string, fallback bool) bool {
	raw, ok := c.GetQuery(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
