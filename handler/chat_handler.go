package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matthewtan01/pdf-rag/database"
	"github.com/matthewtan01/pdf-rag/service"
	"github.com/matthewtan01/pdf-rag/types"
)

type ChatHandler struct {
	handle         *service.ConversationHandle
	history        *database.HistoryStore
	defaultSession string
	logger         *zap.Logger
}

func NewChatHandler(handle *service.ConversationHandle, history *database.HistoryStore, defaultSession string, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		handle:         handle,
		history:        history,
		defaultSession: defaultSession,
		logger:         logger,
	}
}

func (h *ChatHandler) sessionOrDefault(id string) string {
	if id == "" {
		return h.defaultSession
	}
	return id
}

func (h *ChatHandler) HandleChat(c *gin.Context) {
	var req types.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.DataResponse{
			Status:  false,
			Message: "Invalid request body",
		})
		return
	}
	sessionID := h.sessionOrDefault(req.SessionID)

	resp, err := h.handle.Ask(c.Request.Context(), sessionID, req.Question)
	if err != nil {
		h.logger.Warn("chat failed", zap.String("session", sessionID), zap.Error(err))
		sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.DataResponse{
		Status: true,
		Data:   resp,
	})
}

func (h *ChatHandler) HandleHistory(c *gin.Context) {
	sessionID := h.sessionOrDefault(c.Query("session_id"))
	messages := []types.Message{}
	if history, ok := h.history.Get(sessionID); ok {
		messages = history.Messages()
	}
	c.JSON(http.StatusOK, types.DataResponse{
		Status: true,
		Data: types.HistoryResponse{
			SessionID: sessionID,
			Messages:  messages,
		},
	})
}

func (h *ChatHandler) HandleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, types.DataResponse{
		Status: true,
		Data:   types.SessionsResponse{Sessions: h.history.Sessions()},
	})
}
