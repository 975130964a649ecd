package service

import (
	"context"
	"time"

	"mbk-chat-go/internal/model"
	"mbk-chat-go/internal/repository"
)

// UsagePublisher 发布每轮对话的用量事件。Kafka 生产者和 UsageService 都实现了它。
type UsagePublisher interface {
	Publish(ctx context.Context, e model.UsageEvent) error
}

// UsageService 累计每日消息数并回答额度查询。
// 未配置 Kafka 时它同时充当 UsagePublisher，直接写库。
type UsageService interface {
	UsagePublisher
	Record(ctx context.Context, e model.UsageEvent) error
	CountToday(ctx context.Context, username string) (int, error)
}

type usageService struct {
	repo repository.UsageRepository
	now  func() time.Time
}

// NewUsageService 创建一个新的 UsageService 实例。
func NewUsageService(repo repository.UsageRepository) UsageService {
	return &usageService{repo: repo, now: time.Now}
}

// Record 将一次对话计入事件发生当天。
func (s *usageService) Record(ctx context.Context, e model.UsageEvent) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	return s.repo.Increment(ctx, e.Username, e.Day(), 1)
}

func (s *usageService) Publish(ctx context.Context, e model.UsageEvent) error {
	return s.Record(ctx, e)
}

func (s *usageService) CountToday(ctx context.Context, username string) (int, error) {
	return s.repo.CountForDay(ctx, username, model.UsageEvent{At: s.now()}.Day())
}
