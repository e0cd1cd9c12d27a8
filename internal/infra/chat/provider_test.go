package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-voice/internal/resilience/retry"
)

func testProviderConfig(provider, baseURL string) ProviderConfig {
	cfg := DefaultProviderConfig()
	cfg.Provider = provider
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	return cfg
}

func TestOpenAIProvider_Reply(t *testing.T) {
	// Arrange
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "deepseek-chat",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "今天天气不错"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(testProviderConfig(ProviderOpenAI, server.URL))

	// Act
	reply, err := p.Reply(context.Background(), []Message{
		{Role: RoleUser, Content: "你好"},
		{Role: RoleAssistant, Content: "你好！"},
		{Role: RoleUser, Content: "今天天气怎么样"},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "今天天气不错", reply)
	assert.Equal(t, "deepseek-chat", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "今天天气怎么样", got.Messages[3].Content)
}

func TestOpenAIProvider_ErrorStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantRetryable: false},
		{name: "rate limited", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantRetryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "upstream says no", "type": "server_error"}}`))
			}))
			defer server.Close()

			p := NewOpenAIProvider(testProviderConfig(ProviderOpenAI, server.URL))
			_, err := p.Reply(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

			require.Error(t, err)
			assert.Contains(t, err.Error(), "openai api error")
			var httpErr *retry.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantRetryable, retry.IsRetryable(err))
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "choices": []}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(testProviderConfig(ProviderOpenAI, server.URL))
	_, err := p.Reply(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	assert.ErrorContains(t, err, "empty response")
}

func TestOpenAIProvider_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": []}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(testProviderConfig(ProviderOpenAI, server.URL))

	assert.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, ProviderOpenAI, p.Name())
}

func TestClaudeProvider_Reply(t *testing.T) {
	// Arrange
	var got struct {
		Model    string `json:"model"`
		System   []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/messages"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "好的，"}, {"type": "text", "text": "没问题"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 6}
		}`))
	}))
	defer server.Close()

	cfg := testProviderConfig(ProviderClaude, server.URL)
	cfg.Model = "claude-sonnet-4-5"
	p := NewClaudeProvider(cfg)

	// Act
	reply, err := p.Reply(context.Background(), []Message{
		{Role: RoleUser, Content: "帮我订个闹钟"},
		{Role: RoleAssistant, Content: "几点？"},
		{Role: RoleUser, Content: "七点"},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "好的，没问题", reply)
	assert.Equal(t, "claude-sonnet-4-5", got.Model)
	require.Len(t, got.System, 1)
	assert.Equal(t, DefaultSystemPrompt, got.System[0].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestClaudeProvider_BadRequestIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens too large"}}`))
	}))
	defer server.Close()

	p := NewClaudeProvider(testProviderConfig(ProviderClaude, server.URL))
	_, err := p.Reply(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})

	require.Error(t, err)
	var httpErr *retry.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.False(t, retry.IsRetryable(err))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(testProviderConfig(ProviderClaude, ""))
	require.NoError(t, err)
	assert.Equal(t, ProviderClaude, p.Name())

	p, err = NewProvider(testProviderConfig(ProviderOpenAI, ""))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p.Name())

	_, err = NewProvider(ProviderConfig{Provider: "gemini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown chat provider")
	assert.Contains(t, err.Error(), "api key is required")
	assert.Contains(t, err.Error(), "max tokens")
}
