package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/pkg/log"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiProvider talks to the generateContent REST endpoint.
type GeminiProvider struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewGeminiProvider creates a Gemini adapter from explicit configuration.
func NewGeminiProvider(cfg config.ProviderConfig) *GeminiProvider {
	return &GeminiProvider{cfg: cfg, client: &http.Client{}}
}

func (p *GeminiProvider) ID() ProviderID  { return Gemini }
func (p *GeminiProvider) Stateless() bool { return false }

// buildRequest maps canonical roles onto Gemini's: model stays model, system goes
// to systemInstruction unless the provider is configured to fold it.
func (p *GeminiProvider) buildRequest(req Request) geminiRequest {
	var body geminiRequest
	thread := req.Thread
	if p.cfg.FoldSystem {
		thread = foldSystem(thread)
	} else {
		var system string
		system, thread = splitSystem(thread)
		if system != "" {
			body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
		}
	}

	body.Contents = make([]geminiContent, 0, len(thread))
	for _, m := range thread {
		body.Contents = append(body.Contents, geminiContent{
			Role:  string(m.Role),
			Parts: []geminiPart{{Text: m.Text()}},
		})
	}
	t := req.Temperature
	body.GenerationConfig.Temperature = &t
	return body
}

// Send calls generateContent and returns the first candidate's text.
func (p *GeminiProvider) Send(ctx context.Context, req Request) (string, error) {
	if p.cfg.APIKey == "" {
		return "", unavailable(Gemini, 0, ErrMissingCredentials)
	}

	reqBytes, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return "", unavailable(Gemini, 0, errors.Wrap(err, "failed to marshal gemini request"))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return "", unavailable(Gemini, 0, errors.Wrap(err, "failed to create gemini request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", transportError(Gemini, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(Gemini, errors.Wrap(err, "failed to read gemini response"))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiErrorBody
		_ = json.Unmarshal(bodyBytes, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = string(bodyBytes)
		}
		log.Warnw("gemini api error", "status", resp.StatusCode, "code", apiErr.Error.Status, "model", req.Model)
		return "", &ProviderError{
			Provider:   Gemini,
			Kind:       classify(resp.StatusCode, apiErr.Error.Status, msg),
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("gemini api returned %s: %s", resp.Status, msg),
		}
	}

	var out geminiResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", unavailable(Gemini, resp.StatusCode, errors.Wrap(err, "malformed gemini response"))
	}
	if out.PromptFeedback.BlockReason != "" {
		return "", unavailable(Gemini, resp.StatusCode, errors.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason))
	}
	if len(out.Candidates) == 0 {
		return "", unavailable(Gemini, resp.StatusCode, ErrEmptyResponse)
	}

	var text strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", unavailable(Gemini, resp.StatusCode, ErrEmptyResponse)
	}
	return text.String(), nil
}
