package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mbk-chat-go/internal/middleware"
	"mbk-chat-go/internal/service"
	"mbk-chat-go/pkg/log"
)

// SettingsHandler 处理用户设置的读取和保存。
type SettingsHandler struct {
	settingsService service.SettingsService
}

// NewSettingsHandler 创建一个新的 SettingsHandler。
func NewSettingsHandler(settingsService service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetSettings 处理 GET /api/user-settings。读取失败时仍返回默认设置。
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.Get(c.Request.Context(), middleware.Username(c))
	if err != nil {
		log.Warnw("GetSettings: returning defaults", "username", middleware.Username(c), "error", err)
	}
	c.JSON(http.StatusOK, settings)
}

// SaveSettings 处理 POST /api/save-settings。
func (h *SettingsHandler) SaveSettings(c *gin.Context) {
	var in service.SettingsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Warnf("SaveSettings: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request payload."})
		return
	}

	settings, err := h.settingsService.Save(c.Request.Context(), middleware.Username(c), in)
	if err != nil {
		respondError(c, "SaveSettings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Settings saved successfully.",
		"settings": settings,
	})
}
