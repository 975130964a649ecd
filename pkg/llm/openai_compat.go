package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/internal/conversation"
	"mbk-chat-go/pkg/log"
)

// OpenAICompatProvider serves every backend that speaks the OpenAI chat completions
// API (NVIDIA, Groq, Cerebras, SambaNova); only the base URL and key differ.
type OpenAICompatProvider struct {
	id     ProviderID
	cfg    config.ProviderConfig
	client *openai.Client
}

// NewOpenAICompatProvider creates an adapter for id. Without an API key Send fails as unavailable.
func NewOpenAICompatProvider(id ProviderID, cfg config.ProviderConfig) *OpenAICompatProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAICompatProvider{
		id:     id,
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (p *OpenAICompatProvider) ID() ProviderID  { return p.id }
func (p *OpenAICompatProvider) Stateless() bool { return false }

func toOpenAIRole(role conversation.Role) string {
	switch role {
	case conversation.RoleModel:
		return openai.ChatMessageRoleAssistant
	case conversation.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

func (p *OpenAICompatProvider) buildMessages(thread []conversation.Message) []openai.ChatCompletionMessage {
	if p.cfg.FoldSystem {
		thread = foldSystem(thread)
		log.Infow("system prompt folded into first user turn", "provider", p.id)
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(thread))
	for _, m := range thread {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: toOpenAIRole(m.Role), Content: m.Text()})
	}
	return msgs
}

// wireTemperature maps 0 to the smallest positive float32. go-openai tags the field omitempty,
// and an omitted temperature makes the provider fall back to its own default.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// Send calls the chat completions endpoint once; there is no retry at this layer.
func (p *OpenAICompatProvider) Send(ctx context.Context, req Request) (string, error) {
	if p.cfg.APIKey == "" {
		return "", unavailable(p.id, 0, ErrMissingCredentials)
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    p.buildMessages(req.Thread),
		Temperature: wireTemperature(req.Temperature),
	})
	if err != nil {
		return "", p.classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", unavailable(p.id, 0, ErrEmptyResponse)
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", unavailable(p.id, 0, ErrEmptyResponse)
	}
	return text, nil
}

// classifyError prefers the structured status and error code go-openai exposes.
func (p *OpenAICompatProvider) classifyError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		kind := classify(apiErr.HTTPStatusCode, code, apiErr.Message)
		if kind == KindUnavailable && rateLimitCodes[strings.ToLower(apiErr.Type)] {
			kind = KindRateLimited
		}
		log.Warnw("openai-compatible api error", "provider", p.id, "status", apiErr.HTTPStatusCode, "code", code, "type", apiErr.Type)
		return &ProviderError{Provider: p.id, Kind: kind, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Provider: p.id, Kind: classify(reqErr.HTTPStatusCode, "", ""), StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return transportError(p.id, err)
}
