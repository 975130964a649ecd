package service

import (
	"context"
	"errors"

	"mbk-chat-go/internal/conversation"
	"mbk-chat-go/internal/model"
	"mbk-chat-go/internal/repository"
	"mbk-chat-go/pkg/log"
)

// ChatDetail 是单个对话的完整视图，thread 为当前活跃分支。
type ChatDetail struct {
	ID          string                 `json:"id"`
	Temperature float64                `json:"temperature"`
	Version     int                    `json:"version"`
	CreatedAt   model.LocalTime        `json:"createdAt"`
	TreeData    conversation.Snapshot  `json:"treeData"`
	Thread      []conversation.Message `json:"thread"`
}

// HistoryService 定义了对话历史的查询和删除操作。
type HistoryService interface {
	ListChats(ctx context.Context, username string) ([]model.ChatSummary, error)
	GetChat(ctx context.Context, username, chatID string) (*ChatDetail, error)
	DeleteChat(ctx context.Context, username, chatID string) error
}

type historyService struct {
	chats repository.ChatRepository
}

// NewHistoryService 创建一个新的 HistoryService 实例。
func NewHistoryService(chats repository.ChatRepository) HistoryService {
	return &historyService{chats: chats}
}

// ListChats 返回用户的对话摘要，最近保存的在前。无法解析的旧记录节点数记为 0。
func (s *historyService) ListChats(ctx context.Context, username string) ([]model.ChatSummary, error) {
	recs, err := s.chats.ListByUsername(ctx, username)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "Error fetching chat histories.", err)
	}
	summaries := make([]model.ChatSummary, 0, len(recs))
	for _, rec := range recs {
		nodes := 0
		if tree, err := conversation.Parse(rec.Conversation); err == nil {
			nodes = tree.Len()
		} else {
			log.Warnw("stored conversation cannot be parsed", "chatId", rec.ID, "error", err)
		}
		summaries = append(summaries, model.ChatSummary{
			ID:          rec.ID,
			CreatedAt:   model.LocalTime(rec.CreatedAt),
			Temperature: rec.Temperature,
			NodeCount:   nodes,
		})
	}
	return summaries, nil
}

// GetChat 读取用户自己的一个对话，旧版线性历史在读取时迁移为树。
func (s *historyService) GetChat(ctx context.Context, username, chatID string) (*ChatDetail, error) {
	rec, err := loadOwned(ctx, s.chats, username, chatID)
	if err != nil {
		return nil, err
	}
	tree, err := conversation.Parse(rec.Conversation)
	if err != nil {
		return nil, newError(KindPersistenceFailure, "Stored chat history is corrupt.", err)
	}
	return &ChatDetail{
		ID:          rec.ID,
		Temperature: rec.Temperature,
		Version:     rec.Version,
		CreatedAt:   model.LocalTime(rec.CreatedAt),
		TreeData:    tree.Snapshot(),
		Thread:      tree.Thread(""),
	}, nil
}

// DeleteChat 硬删除用户自己的一个对话。
func (s *historyService) DeleteChat(ctx context.Context, username, chatID string) error {
	if chatID == "" {
		return invalidInput("Chat ID is required to delete history.")
	}
	err := s.chats.Delete(ctx, chatID, username)
	if errors.Is(err, repository.ErrChatNotFound) {
		return newError(KindNotFound, "Chat history not found.", err)
	}
	if err != nil {
		return newError(KindPersistenceFailure, "Failed to delete chat history.", err)
	}
	return nil
}

// loadOwned 读取记录并校验所有者；属于其他用户的记录同样视为不存在。
func loadOwned(ctx context.Context, chats repository.ChatRepository, username, chatID string) (*model.ChatRecord, error) {
	rec, err := chats.FindByID(ctx, chatID)
	if errors.Is(err, repository.ErrChatNotFound) {
		return nil, newError(KindNotFound, "Chat history not found.", err)
	}
	if err != nil {
		return nil, newError(KindPersistenceFailure, "Error fetching chat history.", err)
	}
	if rec.Username != username {
		return nil, newError(KindNotFound, "Chat history not found.", nil)
	}
	return rec, nil
}
