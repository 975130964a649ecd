package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/pkg/log"
)

// MallowUnavailableText is returned instead of an error whenever the Mallow endpoint cannot answer.
const MallowUnavailableText = "The Mallow service is currently unavailable. Please contact the operator."

type mallowRequest struct {
	Prompt string `json:"prompt"`
}

type mallowResponse struct {
	Response string `json:"response"`
}

// MallowProvider is stateless: it forwards only the latest user prompt and
// ignores history and temperature. It never fails; errors degrade to MallowUnavailableText.
type MallowProvider struct {
	cfg    config.MallowConfig
	client *http.Client
}

// NewMallowProvider creates the Mallow adapter.
func NewMallowProvider(cfg config.MallowConfig) *MallowProvider {
	return &MallowProvider{cfg: cfg, client: &http.Client{}}
}

func (p *MallowProvider) ID() ProviderID  { return Mallow }
func (p *MallowProvider) Stateless() bool { return true }

func (p *MallowProvider) Send(ctx context.Context, req Request) (string, error) {
	text, err := p.ask(ctx, latestUserPrompt(req.Thread))
	if err != nil {
		log.Warnw("mallow unavailable, returning fallback text", "error", err)
		return MallowUnavailableText, nil
	}
	return text, nil
}

func (p *MallowProvider) ask(ctx context.Context, prompt string) (string, error) {
	if p.cfg.URL == "" {
		return "", ErrMissingCredentials
	}
	reqBytes, err := json.Marshal(mallowRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(reqBytes))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mallow returned status %d", resp.StatusCode)
	}

	var out mallowResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}
	return out.Response, nil
}
