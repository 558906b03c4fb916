package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"datachat/internal/app"
	"datachat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type SendMessageRequest struct {
	SessionID string     `json:"session_id" binding:"required"`
	Content   string     `json:"content" binding:"required"`
	LLM       LLMRequest `json:"llm"`
}

type AnalyzeRequest struct {
	SessionID string     `json:"session_id" binding:"required"`
	Question  string     `json:"question" binding:"required"`
	LLM       LLMRequest `json:"llm"`
}

type LLMRequest struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
}

func (r LLMRequest) override() app.LLMOverride {
	return app.LLMOverride{
		BaseURL: r.BaseURL,
		APIKey:  r.APIKey,
		Model:   r.Model,
	}
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Content:   req.Content,
		LLM:       req.LLM.override(),
	})
	if err != nil {
		writeError(c, err, "send message failed")
		return
	}
	response.OK(c, result)
}

// SendWithVision takes a multipart form: session_id, content, an image file and optional
// alt_text plus llm_base_url/llm_api_key/llm_model overrides.
func (h *ChatHandler) SendWithVision(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	image, _, err := readUpload(c, "image", maxImageBytes)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	result, err := h.chatService.SendVisionMessage(c.Request.Context(), app.VisionMessageInput{
		SendMessageInput: app.SendMessageInput{
			UserID:    userID,
			SessionID: c.PostForm("session_id"),
			Content:   c.PostForm("content"),
			LLM: app.LLMOverride{
				BaseURL: c.PostForm("llm_base_url"),
				APIKey:  c.PostForm("llm_api_key"),
				Model:   c.PostForm("llm_model"),
			},
		},
		Image:   image,
		AltText: c.PostForm("alt_text"),
	})
	if err != nil {
		writeError(c, err, "send vision message failed")
		return
	}
	response.OK(c, result)
}

func (h *ChatHandler) Analyze(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.Analyze(c.Request.Context(), app.AnalyzeInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Question:  req.Question,
		LLM:       req.LLM.override(),
	})
	if err != nil {
		writeError(c, err, "analyze failed")
		return
	}
	response.OK(c, result)
}

func (h *ChatHandler) StreamMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	msg, err := h.chatService.StreamMessage(c.Request.Context(), app.SendMessageInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Content:   req.Content,
		LLM:       req.LLM.override(),
	}, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		message := "stream failed"
		if errors.Is(err, app.ErrSessionNotFound) {
			message = notFoundMessage
		} else if errors.Is(err, app.ErrMessageEmpty) || errors.Is(err, app.ErrLLMConfig) {
			message = err.Error()
		}
		if _, writeErr := c.Writer.Write([]byte(fmt.Sprintf("event: error\ndata: %s\n\n", sanitizeSSE(message)))); writeErr == nil {
			flusher.Flush()
		}
		return
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + msg.ID + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session_id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.chatService.History(c.Request.Context(), sessionID, userID, limit)
	if err != nil {
		writeError(c, err, "get history failed")
		return
	}
	response.OK(c, history)
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
