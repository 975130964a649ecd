// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mbk-chat-go/internal/model"
)

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrVersionConflict = errors.New("chat was modified by another request")
)

// SaveParams 描述一次整树写入。ID 为空表示新建，否则按 ExpectedVersion 做比较交换更新。
type SaveParams struct {
	ID              string
	Username        string
	Conversation    []byte
	Temperature     float64
	ExpectedVersion int
}

// ChatRepository 定义了对话记录的持久化操作。
type ChatRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatRecord, error)
	Save(ctx context.Context, p SaveParams) (*model.ChatRecord, error)
	ListByUsername(ctx context.Context, username string) ([]model.ChatRecord, error)
	Delete(ctx context.Context, id, username string) error
}

type chatRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewChatRepository 创建一个新的 ChatRepository 实例。
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db, now: time.Now}
}

// FindByID 按 ID 读取一行；不存在时返回 ErrChatNotFound。
func (r *chatRepository) FindByID(ctx context.Context, id string) (*model.ChatRecord, error) {
	if id == "" {
		return nil, ErrChatNotFound
	}
	var rec model.ChatRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", id, err)
	}
	return &rec, nil
}

// Save 新建或更新一条对话记录，整树一次写入。
func (r *chatRepository) Save(ctx context.Context, p SaveParams) (*model.ChatRecord, error) {
	if p.ID == "" {
		return r.create(ctx, p)
	}
	return r.update(ctx, p)
}

func (r *chatRepository) create(ctx context.Context, p SaveParams) (*model.ChatRecord, error) {
	rec := &model.ChatRecord{
		ID:           uuid.NewString(),
		Username:     p.Username,
		Conversation: datatypes.JSON(p.Conversation),
		Temperature:  p.Temperature,
		Version:      1,
		CreatedAt:    r.now(),
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return rec, nil
}

// update 只有在版本号与读取时一致时才写入，否则说明有并发请求先保存了。
func (r *chatRepository) update(ctx context.Context, p SaveParams) (*model.ChatRecord, error) {
	now := r.now()
	res := r.db.WithContext(ctx).
		Model(&model.ChatRecord{}).
		Where("id = ? AND username = ? AND version = ?", p.ID, p.Username, p.ExpectedVersion).
		Updates(map[string]interface{}{
			"conversation": datatypes.JSON(p.Conversation),
			"temperature":  p.Temperature,
			"version":      gorm.Expr("version + 1"),
			"created_at":   now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update chat %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.ChatRecord{}).
			Where("id = ? AND username = ?", p.ID, p.Username).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check chat %s: %w", p.ID, err)
		}
		if count == 0 {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("%w: chat %s, expected version %d", ErrVersionConflict, p.ID, p.ExpectedVersion)
	}
	return &model.ChatRecord{
		ID:           p.ID,
		Username:     p.Username,
		Conversation: datatypes.JSON(p.Conversation),
		Temperature:  p.Temperature,
		Version:      p.ExpectedVersion + 1,
		CreatedAt:    now,
	}, nil
}

// ListByUsername 返回用户的全部对话，最近保存的在前。
func (r *chatRepository) ListByUsername(ctx context.Context, username string) ([]model.ChatRecord, error) {
	var recs []model.ChatRecord
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chats for %s: %w", username, err)
	}
	return recs, nil
}

// Delete 硬删除用户自己的一条对话。
func (r *chatRepository) Delete(ctx context.Context, id, username string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND username = ?", id, username).Delete(&model.ChatRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrChatNotFound
	}
	return nil
}
