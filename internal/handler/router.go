package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mbk-chat-go/internal/middleware"
	"mbk-chat-go/internal/service"
	"mbk-chat-go/pkg/token"
)

// RouterDeps 汇总注册路由所需的依赖。
type RouterDeps struct {
	JWT          *token.JWTManager
	AllowedRoles []string
	Chat         service.ChatService
	History      service.HistoryService
	Settings     service.SettingsService
}

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	chatHandler := NewChatHandler(deps.Chat)
	historyHandler := NewHistoryHandler(deps.History)
	settingsHandler := NewSettingsHandler(deps.Settings)

	// 所有 /api 路由都需要认证，并按配置限制角色
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(deps.JWT), middleware.RoleMiddleware(deps.AllowedRoles))
	{
		api.POST("/bot-chat", chatHandler.BotChat)

		chat := api.Group("/chat")
		{
			chat.GET("/histories", historyHandler.ListHistories)
			chat.GET("/histories/:chatId", historyHandler.GetHistory)
			chat.POST("/clear-history/:chatId", historyHandler.ClearHistory)
		}

		api.GET("/user-settings", settingsHandler.GetSettings)
		api.POST("/save-settings", settingsHandler.SaveSettings)
	}
	return r
}
