package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"datachat/internal/app"
	"datachat/internal/model"
	"datachat/internal/pkg/pdfextract"
	"datachat/internal/transport/http/response"
)

const (
	maxCSVBytes   = 20 << 20
	maxImageBytes = 10 << 20
	maxPDFBytes   = 20 << 20
	maxPDFRunes   = 50000
)

// UploadHandler turns an uploaded file into an artifact carried by a new user message.
type UploadHandler struct {
	messages  *app.MessageService
	artifacts *app.ArtifactService
}

func NewUploadHandler(messages *app.MessageService, artifacts *app.ArtifactService) *UploadHandler {
	return &UploadHandler{
		messages:  messages,
		artifacts: artifacts,
	}
}

func (h *UploadHandler) CSV(c *gin.Context) {
	h.handle(c, maxCSVBytes, func(raw []byte, header *multipart.FileHeader, description string) (model.Artifact, error) {
		return h.artifacts.BuildCSVArtifact(c.Request.Context(), raw, description)
	})
}

func (h *UploadHandler) Image(c *gin.Context) {
	h.handle(c, maxImageBytes, func(raw []byte, header *multipart.FileHeader, description string) (model.Artifact, error) {
		return h.artifacts.BuildImageArtifact(c.Request.Context(), raw, description, c.PostForm("alt_text"))
	})
}

func (h *UploadHandler) PDF(c *gin.Context) {
	h.handle(c, maxPDFBytes, func(raw []byte, header *multipart.FileHeader, description string) (model.Artifact, error) {
		text, err := pdfextract.ExtractText(raw, maxPDFRunes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", app.ErrInvalidInput, err)
		}
		if description == "" {
			description = "Text extracted from " + header.Filename
		}
		return h.artifacts.BuildTextArtifact(c.Request.Context(), text, description), nil
	})
}

type buildFunc func(raw []byte, header *multipart.FileHeader, description string) (model.Artifact, error)

func (h *UploadHandler) handle(c *gin.Context, limit int64, build buildFunc) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(c.PostForm("session_id"))
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session_id")
		return
	}

	raw, header, err := readUpload(c, "file", limit)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	description := strings.TrimSpace(c.PostForm("description"))
	artifact, err := build(raw, header, description)
	if err != nil {
		writeError(c, err, "process upload failed")
		return
	}

	content := strings.TrimSpace(c.PostForm("content"))
	if content == "" {
		content = "Uploaded " + header.Filename
	}
	msg, err := h.messages.PushMessage(c.Request.Context(), app.PushMessageInput{
		SessionID: sessionID,
		UserID:    userID,
		Role:      model.RoleUser,
		Content:   content,
		Artifacts: []model.Artifact{artifact},
	})
	if err != nil {
		writeError(c, err, "save upload failed")
		return
	}
	response.OK(c, msg)
}

func readUpload(c *gin.Context, field string, limit int64) ([]byte, *multipart.FileHeader, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, nil, fmt.Errorf("missing %s file", field)
	}
	if header.Size > limit {
		return nil, nil, fmt.Errorf("%s exceeds %d bytes", field, limit)
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open %s failed", field)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s failed", field)
	}
	if int64(len(raw)) > limit {
		return nil, nil, fmt.Errorf("%s exceeds %d bytes", field, limit)
	}
	if len(raw) == 0 {
		return nil, nil, errors.New(field + " is empty")
	}
	return raw, header, nil
}
