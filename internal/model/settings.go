package model

import "time"

// 用户首次访问、尚未保存过设置时使用的默认值。
const (
	DefaultTheme       = "dark"
	DefaultFontSize    = 16
	DefaultModel       = "default"
	DefaultTemperature = 1.0
)

// UserSettings 对应 'user_settings' 表，每个用户一行。
// 温度和每日上限允许为 0，所以这里不使用 gorm 的 default 标签。
// DailyMessageLimit 为 0 时使用 chat.default_daily_limit。
type UserSettings struct {
	Username          string    `gorm:"type:varchar(255);primaryKey" json:"username"`
	Theme             string    `gorm:"type:varchar(32);not null" json:"theme"`
	FontSize          int       `gorm:"not null" json:"fontSize"`
	AIModel           string    `gorm:"column:ai_model;type:varchar(255);not null" json:"model"`
	Temperature       float64   `gorm:"not null" json:"temperature"`
	DailyMessageLimit int       `gorm:"not null" json:"dailyMessageLimit"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UserSettings) TableName() string {
	return "user_settings"
}

// DefaultUserSettings 返回 username 的默认设置。
func DefaultUserSettings(username string) UserSettings {
	return UserSettings{
		Username:    username,
		Theme:       DefaultTheme,
		FontSize:    DefaultFontSize,
		AIModel:     DefaultModel,
		Temperature: DefaultTemperature,
	}
}
