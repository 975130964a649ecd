package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/internal/conversation"
)

var sampleThread = []conversation.Message{
	conversation.NewMessage(conversation.RoleSystem, "You are helpful."),
	conversation.NewMessage(conversation.RoleUser, "2+2?"),
	conversation.NewMessage(conversation.RoleModel, "4"),
	conversation.NewMessage(conversation.RoleUser, "3+3?"),
}

func TestGeminiSendTranslatesThread(t *testing.T) {
	var got geminiRequest
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi "},{"text":"there"}]}}]}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/"})
	text, err := p.Send(context.Background(), Request{Model: "gemini-1.5-flash", Thread: sampleThread, Temperature: 0.7})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", text)
	assert.Equal(t, "/models/gemini-1.5-flash:generateContent", gotPath)
	assert.Equal(t, "k", gotKey)
	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "You are helpful.", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 3)
	assert.Equal(t, "user", got.Contents[0].Role)
	assert.Equal(t, "model", got.Contents[1].Role)
	assert.Equal(t, "3+3?", got.Contents[2].Parts[0].Text)
	require.NotNil(t, got.GenerationConfig.Temperature)
	assert.InDelta(t, 0.7, *got.GenerationConfig.Temperature, 1e-9)
}

func TestGeminiFoldSystem(t *testing.T) {
	p := NewGeminiProvider(config.ProviderConfig{FoldSystem: true})
	body := p.buildRequest(Request{Thread: sampleThread})
	assert.Nil(t, body.SystemInstruction)
	assert.Equal(t, "You are helpful.\n\n2+2?", body.Contents[0].Parts[0].Text)
}

func TestGeminiRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
}

func TestGeminiFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":     {http.StatusInternalServerError, `{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`},
		"no candidates":    {http.StatusOK, `{"candidates":[]}`},
		"empty text":       {http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`},
		"blocked prompt":   {http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		"malformed reply":  {http.StatusOK, `not json`},
		"non json failure": {http.StatusBadGateway, `upstream down`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			p := NewGeminiProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
			text, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
			assert.Empty(t, text)
			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindUnavailable, pe.Kind)
		})
	}
}

func TestGeminiMissingKey(t *testing.T) {
	p := NewGeminiProvider(config.ProviderConfig{BaseURL: "http://unused"})
	_, err := p.Send(context.Background(), Request{Model: "m", Thread: sampleThread})
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.False(t, IsRateLimited(err))
}

func TestGeminiHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := NewGeminiProvider(config.ProviderConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Send(ctx, Request{Model: "m", Thread: sampleThread})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
