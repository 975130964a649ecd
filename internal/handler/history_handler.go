package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mbk-chat-go/internal/middleware"
	"mbk-chat-go/internal/service"
)

// HistoryHandler 处理对话历史的查询和删除。
type HistoryHandler struct {
	historyService service.HistoryService
}

// NewHistoryHandler 创建一个新的 HistoryHandler。
func NewHistoryHandler(historyService service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// ListHistories 处理 GET /api/chat/histories。
func (h *HistoryHandler) ListHistories(c *gin.Context) {
	list, err := h.historyService.ListChats(c.Request.Context(), middleware.Username(c))
	if err != nil {
		respondError(c, "ListHistories", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetHistory 处理 GET /api/chat/histories/:chatId。
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	detail, err := h.historyService.GetChat(c.Request.Context(), middleware.Username(c), c.Param("chatId"))
	if err != nil {
		respondError(c, "GetHistory", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ClearHistory 处理 POST /api/chat/clear-history/:chatId。
func (h *HistoryHandler) ClearHistory(c *gin.Context) {
	chatID := c.Param("chatId")
	if err := h.historyService.DeleteChat(c.Request.Context(), middleware.Username(c), chatID); err != nil {
		respondError(c, "ClearHistory", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  http.StatusOK,
		"message": "Chat history deleted successfully.",
		"chatId":  chatID,
	})
}
