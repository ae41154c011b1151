package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matthewtan01/pdf-rag/types"
)

// statusFor maps an error kind to the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrEmptyQuestion), errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNoDocuments):
		return http.StatusConflict
	case errors.Is(err, types.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrEmbedding), errors.Is(err, types.ErrIndexing),
		errors.Is(err, types.ErrRetrieval), errors.Is(err, types.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func sendError(c *gin.Context, err error) {
	c.JSON(statusFor(err), types.DataResponse{
		Status:  false,
		Message: err.Error(),
	})
}
