package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"datachat/internal/app"
	"datachat/internal/transport/http/middleware"
	"datachat/internal/transport/http/response"
)

const notFoundMessage = "resource not found or not accessible"

// writeError maps service errors to the response envelope. Anything unrecognized is logged
// and reported with the generic fallback message.
func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeMessageEmpty, err.Error())
	case errors.Is(err, app.ErrLLMConfig):
		response.Error(c, http.StatusBadRequest, response.CodeLLMConfig, err.Error())
	case errors.Is(err, app.ErrNoDataset):
		response.Error(c, http.StatusBadRequest, response.CodeNoDataset, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, notFoundMessage)
	case errors.Is(err, app.ErrMessageNotFound):
		response.Error(c, http.StatusNotFound, response.CodeMessageNotFound, notFoundMessage)
	case errors.Is(err, app.ErrArtifactNotFound):
		response.Error(c, http.StatusNotFound, response.CodeArtifactNotFound, notFoundMessage)
	case errors.Is(err, app.ErrAnalysisFailed):
		response.Error(c, http.StatusBadGateway, response.CodeAnalysisFailed, err.Error())
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
	}
	return userID, ok
}
