package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pawel/toolgate/internal/chat"
)

// ChatHandler proxies chat completion requests to the configured
// OpenAI-compatible upstream.
type ChatHandler struct {
	service *chat.Service
}

func NewChatHandler(service *chat.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// Complete handles POST /api/v1/chat/completions.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ChatHandler) Complete(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid messages: must provide a messages array"})
		return
	}

	resp, err := h.service.Complete(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Chat completion failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
