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

func TestMallowSendsOnlyLatestPrompt(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"mallow says hi"}`))
	}))
	defer srv.Close()

	p := NewMallowProvider(config.MallowConfig{URL: srv.URL})
	text, err := p.Send(context.Background(), Request{Model: "default", Thread: sampleThread, Temperature: 1.5})
	require.NoError(t, err)

	assert.Equal(t, "mallow says hi", text)
	assert.Equal(t, map[string]interface{}{"prompt": "3+3?"}, got)
	assert.True(t, p.Stateless())
}

func TestMallowDegradesGracefully(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":""}`))
	}))
	defer empty.Close()

	for name, url := range map[string]string{"unconfigured": "", "status": down.URL, "empty": empty.URL, "unreachable": "http://127.0.0.1:1"} {
		t.Run(name, func(t *testing.T) {
			p := NewMallowProvider(config.MallowConfig{URL: url})
			text, err := p.Send(context.Background(), Request{Thread: sampleThread})
			require.NoError(t, err)
			assert.Equal(t, MallowUnavailableText, text)
		})
	}
}
