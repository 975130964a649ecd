package model

import "time"

// UserMessageLog 对应 'user_message_logs' 表，按用户和日期累计消息数，供仪表盘统计。
type UserMessageLog struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"type:varchar(255);not null;uniqueIndex:idx_user_date" json:"username"`
	Date         string `gorm:"type:varchar(10);not null;uniqueIndex:idx_user_date" json:"date"` // YYYY-MM-DD
	MessageCount int    `gorm:"not null" json:"messageCount"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UserMessageLog) TableName() string {
	return "user_message_logs"
}

// UsageEvent 是每次成功调用模型服务后发布到 Kafka 的消息体。
type UsageEvent struct {
	Username  string    `json:"username"`
	ChatID    string    `json:"chatId,omitempty"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Persisted bool      `json:"persisted"`
	At        time.Time `json:"at"`
}

// Day 返回事件所属的自然日（UTC），作为 user_message_logs 的 date 列。
func (e UsageEvent) Day() string {
	return e.At.UTC().Format("2006-01-02")
}
