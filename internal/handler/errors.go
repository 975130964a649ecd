// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mbk-chat-go/internal/middleware"
	"mbk-chat-go/internal/service"
	"mbk-chat-go/pkg/log"
)

// respondError 把业务错误转换为 {message[, aiResponse]} 响应，内部错误细节只写日志。
func respondError(c *gin.Context, op string, err error) {
	ce, ok := service.AsChatError(err)
	if !ok {
		log.Errorw(op+" failed", "username", middleware.Username(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error."})
		return
	}

	status := ce.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Errorw(op+" failed", "kind", ce.Kind, "username", middleware.Username(c), "error", ce)
	} else {
		log.Warnw(op+" rejected", "kind", ce.Kind, "username", middleware.Username(c), "error", ce)
	}
	_ = c.Error(err)

	body := gin.H{"message": ce.Message, "kind": ce.Kind}
	if ce.AIResponse != "" {
		body["aiResponse"] = ce.AIResponse
	}
	c.JSON(status, body)
}
