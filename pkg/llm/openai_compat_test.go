package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbk-chat-go/internal/config"
)

type capturedChatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newOpenAIServer(t *testing.T, status int, body string, captured *capturedChatRequest, auth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestOpenAICompatSend(t *testing.T) {
	var got capturedChatRequest
	var auth string
	srv := newOpenAIServer(t, http.StatusOK,
		`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"6"},"finish_reason":"stop"}]}`,
		&got, &auth)
	defer srv.Close()

	p := NewOpenAICompatProvider(Groq, config.ProviderConfig{APIKey: "secret", BaseURL: srv.URL + "/"})
	text, err := p.Send(context.Background(), Request{Model: "llama3-8b-8192", Thread: sampleThread, Temperature: 0.5})
	require.NoError(t, err)

	assert.Equal(t, "6", text)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "llama3-8b-8192", got.Model)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "3+3?", got.Messages[3].Content)
}

func TestOpenAICompatSendsZeroTemperature(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatProvider(Groq, config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread, Temperature: 0})
	require.NoError(t, err)

	require.Contains(t, body, "temperature")
	assert.InDelta(t, 0, body["temperature"], 1e-6)
}

func TestOpenAICompatFoldSystem(t *testing.T) {
	var got capturedChatRequest
	srv := newOpenAIServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`, &got, nil)
	defer srv.Close()

	p := NewOpenAICompatProvider(SambaNova, config.ProviderConfig{APIKey: "k", BaseURL: srv.URL, FoldSystem: true})
	_, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
	require.NoError(t, err)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "You are helpful.\n\n2+2?", got.Messages[0].Content)
}

func TestOpenAICompatRateLimited(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`, nil, nil)
	defer srv.Close()

	p := NewOpenAICompatProvider(Cerebras, config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, Cerebras, pe.Provider)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
}

func TestOpenAICompatQuotaCodeWithoutStatus429(t *testing.T) {
	srv := newOpenAIServer(t, http.StatusForbidden,
		`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`, nil, nil)
	defer srv.Close()

	p := NewOpenAICompatProvider(NVIDIA, config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
	assert.True(t, IsRateLimited(err))
}

func TestOpenAICompatFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":  {http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`},
		"html failure":  {http.StatusBadGateway, `<html>bad gateway</html>`},
		"no choices":    {http.StatusOK, `{"choices":[]}`},
		"empty content": {http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newOpenAIServer(t, tc.status, tc.body, nil, nil)
			defer srv.Close()

			p := NewOpenAICompatProvider(Groq, config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
			text, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
			assert.Empty(t, text)
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindUnavailable, pe.Kind)
		})
	}
}

func TestOpenAICompatMissingKey(t *testing.T) {
	p := NewOpenAICompatProvider(Groq, config.ProviderConfig{})
	_, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
