package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mbk-chat-go/internal/model"
	"mbk-chat-go/pkg/log"
)

var ErrSettingsNotFound = errors.New("user settings not found")

// SettingsTTL 是设置在 Redis 中的缓存时间。
const SettingsTTL = 5 * time.Minute

// SettingsRepository 定义了用户设置的持久化操作。
type SettingsRepository interface {
	FindByUsername(ctx context.Context, username string) (*model.UserSettings, error)
	Upsert(ctx context.Context, s *model.UserSettings) error
}

type settingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建一个新的 SettingsRepository 实例。
func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

// FindByUsername 读取用户设置；从未保存过时返回 ErrSettingsNotFound。
func (r *settingsRepository) FindByUsername(ctx context.Context, username string) (*model.UserSettings, error) {
	var s model.UserSettings
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for %s: %w", username, err)
	}
	return &s, nil
}

// Upsert 按 username 插入或覆盖一行设置。已有行的 daily_message_limit 保持不变。
func (r *settingsRepository) Upsert(ctx context.Context, s *model.UserSettings) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"theme", "font_size", "ai_model", "temperature", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("failed to save settings for %s: %w", s.Username, err)
	}
	return nil
}

// SettingsCache 缓存用户设置。缓存不可用时所有方法都应静默降级为未命中。
type SettingsCache interface {
	Get(ctx context.Context, username string) (*model.UserSettings, bool)
	Set(ctx context.Context, s *model.UserSettings)
	Invalidate(ctx context.Context, username string)
}

type redisSettingsCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewSettingsCache 返回基于 Redis 的缓存；redisClient 为 nil 时返回不缓存的实现。
func NewSettingsCache(redisClient *redis.Client) SettingsCache {
	if redisClient == nil {
		return noopSettingsCache{}
	}
	return &redisSettingsCache{redisClient: redisClient, ttl: SettingsTTL}
}

func settingsKey(username string) string {
	return fmt.Sprintf("user_settings:%s", username)
}

func (c *redisSettingsCache) Get(ctx context.Context, username string) (*model.UserSettings, bool) {
	data, err := c.redisClient.Get(ctx, settingsKey(username)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warnw("settings cache read failed", "username", username, "error", err)
		}
		return nil, false
	}
	var s model.UserSettings
	if err := json.Unmarshal(data, &s); err != nil {
		log.Warnw("settings cache entry is corrupt", "username", username, "error", err)
		return nil, false
	}
	return &s, true
}

func (c *redisSettingsCache) Set(ctx context.Context, s *model.UserSettings) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.redisClient.Set(ctx, settingsKey(s.Username), data, c.ttl).Err(); err != nil {
		log.Warnw("settings cache write failed", "username", s.Username, "error", err)
	}
}

func (c *redisSettingsCache) Invalidate(ctx context.Context, username string) {
	if err := c.redisClient.Del(ctx, settingsKey(username)).Err(); err != nil {
		log.Warnw("settings cache invalidation failed", "username", username, "error", err)
	}
}

type noopSettingsCache struct{}

func (noopSettingsCache) Get(context.Context, string) (*model.UserSettings, bool) { return nil, false }
func (noopSettingsCache) Set(context.Context, *model.UserSettings)                {}
func (noopSettingsCache) Invalidate(context.Context, string)                      {}
