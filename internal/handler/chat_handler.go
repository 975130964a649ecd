package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mbk-chat-go/internal/middleware"
	"mbk-chat-go/internal/service"
	"mbk-chat-go/pkg/log"
)

// ChatHandler 处理对话请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// BotChat 处理 POST /api/bot-chat，返回 {aiResponse, newChatId, treeData}。
func (h *ChatHandler) BotChat(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("BotChat: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request payload."})
		return
	}

	if claims, ok := middleware.Claims(c); ok {
		req.Role = claims.Role
	}

	resp, err := h.chatService.Chat(c.Request.Context(), middleware.Username(c), req)
	if err != nil {
		respondError(c, "BotChat", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
