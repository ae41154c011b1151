package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type CorsHandler struct {
	allowOrigin string
}

func NewCorsHandler(allowOrigin string) *CorsHandler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return &CorsHandler{allowOrigin: allowOrigin}
}

func (h *CorsHandler) CorsMiddleware(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", h.allowOrigin)
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}
