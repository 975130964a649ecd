package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mbk-chat-go/internal/model"
)

// UsageRepository 维护按天累计的消息计数。
type UsageRepository interface {
	Increment(ctx context.Context, username, date string, n int) error
	CountForDay(ctx context.Context, username, date string) (int, error)
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository 创建一个新的 UsageRepository 实例。
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// Increment 对 (username, date) 行执行 upsert，计数加 n。
func (r *usageRepository) Increment(ctx context.Context, username, date string, n int) error {
	row := &model.UserMessageLog{Username: username, Date: date, MessageCount: n}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"message_count": gorm.Expr("message_count + ?", n),
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to record usage for %s on %s: %w", username, date, err)
	}
	return nil
}

// CountForDay 返回用户某天的消息数，没有记录时为 0。
func (r *usageRepository) CountForDay(ctx context.Context, username, date string) (int, error) {
	var rows []model.UserMessageLog
	err := r.db.WithContext(ctx).
		Where("username = ? AND date = ?", username, date).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read usage for %s on %s: %w", username, date, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].MessageCount, nil
}
