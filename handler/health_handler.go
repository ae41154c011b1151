package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/matthewtan01/pdf-rag/service"
	"github.com/matthewtan01/pdf-rag/types"
)

type HealthHandler struct {
	handle *service.ConversationHandle
}

func NewHealthHandler(handle *service.ConversationHandle) *HealthHandler {
	return &HealthHandler{handle: handle}
}

type healthStatus struct {
	DocumentsLoaded bool `json:"documents_loaded"`
	IndexedChunks   int  `json:"indexed_chunks"`
}

func (h *HealthHandler) HandleHealth(c *gin.Context) {
	var st healthStatus
	if p := h.handle.Current(); p != nil {
		st.DocumentsLoaded = true
		st.IndexedChunks = p.Index().Size()
	}
	c.JSON(http.StatusOK, types.DataResponse{
		Status:  true,
		Message: "OK",
		Data:    st,
	})
}
