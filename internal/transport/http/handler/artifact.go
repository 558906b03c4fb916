package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"datachat/internal/app"
	"datachat/internal/model"
	"datachat/internal/transport/http/response"
)

type ArtifactHandler struct {
	artifacts *app.ArtifactService
}

type UpdateArtifactRequest struct {
	Description string `json:"description" binding:"max=512"`
}

func NewArtifactHandler(artifacts *app.ArtifactService) *ArtifactHandler {
	return &ArtifactHandler{artifacts: artifacts}
}

func messageRef(c *gin.Context, userID string) app.MessageRef {
	return app.MessageRef{
		MessageID: c.Param("message_id"),
		SessionID: c.Param("session_id"),
		UserID:    userID,
	}
}

func (h *ArtifactHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	artifacts, err := h.artifacts.ListForMessage(c.Request.Context(), messageRef(c, userID))
	if err != nil {
		writeError(c, err, "list artifacts failed")
		return
	}
	response.OK(c, artifacts)
}

func (h *ArtifactHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	artifact, err := h.artifacts.GetArtifact(c.Request.Context(), messageRef(c, userID), c.Param("artifact_id"))
	if err != nil {
		writeError(c, err, "get artifact failed")
		return
	}
	response.OK(c, artifact)
}

// Raw serves the artifact payload with its content type instead of the JSON envelope.
func (h *ArtifactHandler) Raw(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	artifact, err := h.artifacts.GetArtifact(c.Request.Context(), messageRef(c, userID), c.Param("artifact_id"))
	if err != nil {
		writeError(c, err, "get artifact failed")
		return
	}
	payload, err := app.Payload(artifact)
	if err != nil {
		writeError(c, err, "decode artifact failed")
		return
	}
	c.Data(http.StatusOK, model.ContentType(artifact), payload)
}

func (h *ArtifactHandler) UpdateDescription(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	artifact, err := h.artifacts.UpdateDescription(c.Request.Context(), messageRef(c, userID), c.Param("artifact_id"), req.Description)
	if err != nil {
		writeError(c, err, "update artifact failed")
		return
	}
	response.OK(c, artifact)
}

func (h *ArtifactHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	artifactID := c.Param("artifact_id")
	deleted, err := h.artifacts.DeleteArtifact(c.Request.Context(), messageRef(c, userID), artifactID)
	if err != nil {
		writeError(c, err, "delete artifact failed")
		return
	}
	response.OK(c, gin.H{
		"deleted_artifact_id": artifactID,
		"deleted_keys":        deleted,
	})
}
