// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// ChatRecord 对应 'ai_history' 表，一行保存一个完整的对话树。
type ChatRecord struct {
	// ID 由服务端生成的 UUID 字符串。
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`
	// Username 是对话的所有者。
	Username string `gorm:"type:varchar(255);index;not null" json:"username"`
	// Conversation 原样存储对话树的 JSON 快照；旧数据可能是线性消息数组。
	Conversation datatypes.JSON `json:"conversation"`
	// Temperature 记录最近一轮使用的温度。
	Temperature float64 `gorm:"not null" json:"temperature"`
	// Version 是乐观锁版本号，从 1 开始，每次更新加一。
	Version int `gorm:"not null" json:"version"`
	// CreatedAt 每次保存都会刷新。
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatRecord) TableName() string {
	return "ai_history"
}

// ChatSummary 是历史列表中的一项，不携带完整的对话树。
type ChatSummary struct {
	ID          string    `json:"id"`
	CreatedAt   LocalTime `json:"createdAt"`
	Temperature float64   `json:"temperature"`
	NodeCount   int       `json:"nodeCount"`
}
