// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/internal/conversation"
	"mbk-chat-go/internal/model"
	"mbk-chat-go/internal/repository"
	"mbk-chat-go/pkg/llm"
	"mbk-chat-go/pkg/log"
)

// ChatRequest 是 POST /api/bot-chat 的请求体。
type ChatRequest struct {
	Message         string   `json:"message"`
	ChatID          string   `json:"chatId"`
	ParentMessageID string   `json:"parentMessageId"`
	Model           string   `json:"model"`
	Temperature     *float64 `json:"temperature"`
	// Role 来自已验证的令牌，不从请求体读取。
	Role string `json:"-"`
}

// ChatResponse 是一轮对话的结果。无状态模型服务不保存历史，TreeData 为空。
type ChatResponse struct {
	AIResponse string                 `json:"aiResponse"`
	NewChatID  string                 `json:"newChatId"`
	TreeData   *conversation.Snapshot `json:"treeData"`
}

// ChatService 定义了一轮对话的编排操作。
type ChatService interface {
	Chat(ctx context.Context, username string, req ChatRequest) (*ChatResponse, error)
}

type chatService struct {
	chats     repository.ChatRepository
	settings  SettingsService
	usage     UsageService
	registry  *llm.Registry
	publisher UsagePublisher
	cfg       config.ChatConfig

	now      func() time.Time
	treeOpts []conversation.Option
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	chats repository.ChatRepository,
	settings SettingsService,
	usage UsageService,
	registry *llm.Registry,
	publisher UsagePublisher,
	cfg config.ChatConfig,
) ChatService {
	s := &chatService{
		chats:     chats,
		settings:  settings,
		usage:     usage,
		registry:  registry,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
	// 节点时间与用量事件使用同一个时钟
	s.treeOpts = []conversation.Option{conversation.WithClock(func() time.Time { return s.now() })}
	return s
}

// turn 保存一轮对话在各阶段之间传递的状态，只在单个请求内使用。
type turn struct {
	username    string
	chatID      string
	version     int
	tree        *conversation.Tree
	provider    llm.Provider
	ref         llm.ModelRef
	temperature float64
	userNodeID  string
}

// Chat 依次执行 LOAD → APPEND_USER → BUILD_THREAD → INVOKE_PROVIDER → APPEND_ASSISTANT → PERSIST。
// 任何一步失败都会丢弃内存中的树，存储中不会出现半轮对话。
func (s *chatService) Chat(ctx context.Context, username string, req ChatRequest) (*ChatResponse, error) {
	t, err := s.prepare(ctx, username, req)
	if err != nil {
		return nil, err
	}

	if err := s.load(ctx, t, req.ChatID); err != nil {
		return nil, err
	}

	parentID := req.ParentMessageID
	if parentID == "" {
		parentID = t.tree.CurrentLeafID()
	} else if !t.tree.Has(parentID) {
		return nil, invalidInput("parent message %q does not exist in this chat", parentID)
	}
	t.userNodeID, err = t.tree.AddMessage(conversation.RoleUser, req.Message, parentID)
	if err != nil {
		return nil, newError(KindInvalidInput, "Cannot append message to this chat.", err)
	}

	text, err := s.invoke(ctx, t, t.tree.Thread(t.userNodeID))
	if err != nil {
		return nil, err
	}

	if t.provider.Stateless() {
		s.publish(ctx, t, false)
		return &ChatResponse{AIResponse: text, NewChatID: req.ChatID}, nil
	}

	if _, err := t.tree.AddMessage(conversation.RoleModel, text, t.userNodeID); err != nil {
		return nil, &ChatError{Kind: KindPersistenceFailure, Message: "AI response was generated but could not be saved.", AIResponse: text, Err: err}
	}
	snapshot, err := s.persist(ctx, t, text)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, t, true)

	return &ChatResponse{AIResponse: text, NewChatID: t.chatID, TreeData: snapshot}, nil
}

// prepare 在任何 I/O 之前校验输入，并按 请求 → 用户设置 → 配置默认值 的顺序确定模型和温度。
func (s *chatService) prepare(ctx context.Context, username string, req ChatRequest) (*turn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, invalidInput("Message cannot be empty.")
	}
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(req.Message) > s.cfg.MaxMessageLength {
		return nil, invalidInput("Message exceeds the maximum length of %d characters.", s.cfg.MaxMessageLength)
	}
	if req.Temperature != nil && (math.IsNaN(*req.Temperature) || math.IsInf(*req.Temperature, 0)) {
		return nil, invalidInput("Temperature must be a finite number.")
	}

	// 请求中显式给出的模型在读取设置之前校验
	requested := strings.TrimSpace(req.Model)
	if requested == model.DefaultModel {
		requested = ""
	}
	if requested != "" {
		if _, _, err := s.registry.Resolve(requested); err != nil {
			return nil, newError(KindInvalidInput, "Invalid model: "+err.Error(), err)
		}
	}

	settings, err := s.settings.Get(ctx, username)
	if err != nil {
		log.Warnw("falling back to default settings", "username", username, "error", err)
	}

	modelName := requested
	if modelName == "" {
		modelName = settings.AIModel
	}
	if modelName == "" || modelName == model.DefaultModel {
		modelName = s.cfg.DefaultModel
	}
	provider, ref, err := s.registry.Resolve(modelName)
	if err != nil {
		return nil, newError(KindInvalidInput, "Invalid model: "+err.Error(), err)
	}

	temperature := s.cfg.DefaultTemperature
	switch {
	case req.Temperature != nil:
		temperature = *req.Temperature
	case !settings.UpdatedAt.IsZero():
		temperature = settings.Temperature
	}

	if err := s.checkDailyLimit(ctx, username, req.Role, settings.DailyMessageLimit); err != nil {
		return nil, err
	}

	return &turn{
		username:    username,
		provider:    provider,
		ref:         ref,
		temperature: llm.ClampTemperature(temperature),
	}, nil
}

// checkDailyLimit 校验今天的消息数。用户单独设置的上限优先于配置默认值，
// UnlimitedRoles 中的角色直接放行。计数读取失败时放行。
func (s *chatService) checkDailyLimit(ctx context.Context, username, role string, override int) error {
	for _, r := range s.cfg.UnlimitedRoles {
		if r == role {
			return nil
		}
	}
	limit := s.cfg.DefaultDailyLimit
	if override > 0 {
		limit = override
	}
	if limit <= 0 || s.usage == nil {
		return nil
	}
	count, err := s.usage.CountToday(ctx, username)
	if err != nil {
		log.Warnw("daily usage lookup failed", "username", username, "error", err)
		return nil
	}
	if count >= limit {
		return &ChatError{Kind: KindRateLimited, Message: "Daily message limit reached. Please try again tomorrow."}
	}
	return nil
}

// load 读取已有对话或新建一棵以 system 前言为根的树。指定的 chatId 不存在时直接失败。
func (s *chatService) load(ctx context.Context, t *turn, chatID string) error {
	if chatID == "" {
		t.tree = conversation.New(s.treeOpts...)
	} else {
		rec, err := loadOwned(ctx, s.chats, t.username, chatID)
		if err != nil {
			return err
		}
		tree, err := conversation.Parse(rec.Conversation, s.treeOpts...)
		if err != nil {
			return newError(KindPersistenceFailure, "Stored chat history is corrupt.", err)
		}
		t.chatID, t.version, t.tree = rec.ID, rec.Version, tree
	}

	if t.tree.IsEmpty() {
		if _, err := t.tree.AddMessage(conversation.RoleSystem, s.cfg.SystemPreamble, ""); err != nil {
			return newError(KindPersistenceFailure, "Cannot initialize chat.", err)
		}
	}
	return nil
}

// invoke 在超时控制下调用模型服务，并把失败归类为限流或不可用。
func (s *chatService) invoke(ctx context.Context, t *turn, thread []conversation.Message) (string, error) {
	if s.cfg.ProviderTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.ProviderTimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := s.now()
	text, err := t.provider.Send(ctx, llm.Request{Model: t.ref.Model, Thread: thread, Temperature: t.temperature})
	if err != nil {
		log.Errorw("provider call failed", "provider", t.ref.Provider, "model", t.ref.Model, "username", t.username, "error", err)
		if llm.IsRateLimited(err) {
			return "", newError(KindRateLimited, "The AI service is rate limited. Please wait a moment or switch to another model.", err)
		}
		return "", newError(KindProviderUnavailable, "The AI service failed to generate a response.", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", newError(KindProviderUnavailable, "The AI service returned an empty response.", llm.ErrEmptyResponse)
	}
	log.Infow("provider call succeeded", "provider", t.ref.Provider, "model", t.ref.Model, "latency", s.now().Sub(start).String())
	return text, nil
}

// persist 一次性写入整棵树。写入失败时错误中仍带上已生成的回复。
func (s *chatService) persist(ctx context.Context, t *turn, text string) (*conversation.Snapshot, error) {
	snapshot := t.tree.Snapshot()
	data, err := json.Marshal(t.tree)
	if err != nil {
		return nil, &ChatError{Kind: KindPersistenceFailure, Message: "AI response was generated but could not be saved.", AIResponse: text, Err: err}
	}

	rec, err := s.chats.Save(ctx, repository.SaveParams{
		ID:              t.chatID,
		Username:        t.username,
		Conversation:    data,
		Temperature:     t.temperature,
		ExpectedVersion: t.version,
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		return nil, &ChatError{Kind: KindConflict, Message: "This chat was updated by another request. Reload it and try again.", AIResponse: text, Err: err}
	}
	if err != nil {
		log.Errorw("failed to save chat", "chatId", t.chatID, "username", t.username, "error", err)
		return nil, &ChatError{Kind: KindPersistenceFailure, Message: "AI response was generated but could not be saved.", AIResponse: text, Err: err}
	}

	t.chatID, t.version = rec.ID, rec.Version
	return &snapshot, nil
}

// publish 发布用量事件，失败只记录日志，不影响本轮结果。
func (s *chatService) publish(ctx context.Context, t *turn, persisted bool) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, model.UsageEvent{
		Username:  t.username,
		ChatID:    t.chatID,
		Provider:  string(t.ref.Provider),
		Model:     t.ref.Model,
		Persisted: persisted,
		At:        s.now(),
	})
	if err != nil {
		log.Warnw("failed to publish usage event", "username", t.username, "error", err)
	}
}
