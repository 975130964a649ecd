package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"mbk-chat-go/internal/model"
	"mbk-chat-go/internal/repository"
	"mbk-chat-go/pkg/llm"
	"mbk-chat-go/pkg/log"
)

var validThemes = map[string]bool{"dark": true, "light": true}

// SettingsInput 是 POST /api/save-settings 的请求体，未提供的字段保留原值。
// 每日上限由运维在数据库中设置，不能通过这里修改。
type SettingsInput struct {
	Theme       string   `json:"theme"`
	FontSize    int      `json:"fontSize"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
}

// SettingsService 定义了用户设置的业务逻辑接口。
type SettingsService interface {
	// Get 返回用户设置，从未保存过时返回默认值（UpdatedAt 为零值）。
	Get(ctx context.Context, username string) (model.UserSettings, error)
	Save(ctx context.Context, username string, in SettingsInput) (model.UserSettings, error)
}

type settingsService struct {
	repo     repository.SettingsRepository
	cache    repository.SettingsCache
	registry *llm.Registry
}

// NewSettingsService 创建一个新的 SettingsService 实例。
func NewSettingsService(repo repository.SettingsRepository, cache repository.SettingsCache, registry *llm.Registry) SettingsService {
	return &settingsService{repo: repo, cache: cache, registry: registry}
}

func (s *settingsService) Get(ctx context.Context, username string) (model.UserSettings, error) {
	if cached, ok := s.cache.Get(ctx, username); ok {
		return *cached, nil
	}
	stored, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrSettingsNotFound) {
		return model.DefaultUserSettings(username), nil
	}
	if err != nil {
		return model.DefaultUserSettings(username), newError(KindPersistenceFailure, "Error fetching user settings.", err)
	}
	s.cache.Set(ctx, stored)
	return *stored, nil
}

func (s *settingsService) Save(ctx context.Context, username string, in SettingsInput) (model.UserSettings, error) {
	// 读取失败时不能在默认值上合并写回，否则会覆盖已保存的设置
	current, err := s.Get(ctx, username)
	if err != nil {
		return current, err
	}

	if in.Theme != "" {
		theme := strings.ToLower(strings.TrimSpace(in.Theme))
		if !validThemes[theme] {
			return current, invalidInput("unsupported theme %q", in.Theme)
		}
		current.Theme = theme
	}
	if in.FontSize != 0 {
		if in.FontSize < 8 || in.FontSize > 48 {
			return current, invalidInput("font size must be between 8 and 48")
		}
		current.FontSize = in.FontSize
	}
	if in.Model != "" {
		m := strings.TrimSpace(in.Model)
		if m != model.DefaultModel {
			if _, _, err := s.registry.Resolve(m); err != nil {
				return current, invalidInput("invalid model %q: %v", in.Model, err)
			}
		}
		current.AIModel = m
	}
	if in.Temperature != nil {
		t := *in.Temperature
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return current, invalidInput("temperature must be a finite number")
		}
		current.Temperature = llm.ClampTemperature(t)
	}

	current.Username = username
	current.UpdatedAt = time.Now()
	if err := s.repo.Upsert(ctx, &current); err != nil {
		return current, newError(KindPersistenceFailure, "Failed to save settings.", err)
	}
	s.cache.Invalidate(ctx, username)
	log.Infow("user settings saved", "username", username, "model", current.AIModel)
	return current, nil
}
