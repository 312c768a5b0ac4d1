package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gmarko-dV/Integrador/internal/models"
	"github.com/gmarko-dV/Integrador/internal/services"
)

type ChatHandler struct {
	chat services.IChatService
}

func NewChatHandler(chat services.IChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "El mensaje es requerido"})
		return
	}

	resp, err := h.chat.ProcessMessage(c.Request.Context(), req.Message, req.ConversationHistory)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Error al procesar el mensaje: " + err.Error(),
		})
		return
	}

	ids := resp.RecommendedAnuncioIDs
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":               true,
		"response":              resp.Response,
		"recommendedAnuncioIds": ids,
		"hasRecommendations":    resp.HasRecommendations,
	})
}
