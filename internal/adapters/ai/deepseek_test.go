package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *DeepSeekProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	provider, err := NewDeepSeekProvider("test-key", srv.URL, "deepseek-chat", 5*time.Second)
	require.NoError(t, err)
	return provider
}

func TestNewDeepSeekProviderRequiresKey(t *testing.T) {
	_, err := NewDeepSeekProvider("", "", "", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestChatRequestWire(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		_, _ = w.Write([]byte(`{
			"id": "resp-1",
			"model": "deepseek-chat",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	})

	resp, err := provider.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		Temperature: 0.4,
		ToolChoice:  "auto",
		Tools: []ToolDefinition{{
			Type: "function",
			Function: FunctionDefinition{
				Name:        "get_ticker",
				Description: "fetch a ticker",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "deepseek-chat", gotBody["model"])
	assert.Equal(t, "auto", gotBody["tool_choice"])
	assert.Len(t, gotBody["tools"], 1)

	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello", resp.First().Content)
	assert.Equal(t, FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestChatToolCallsResponse(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "resp-2",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call-1",
						"type": "function",
						"function": {"name": "get_ticker", "arguments": "{\"instId\":\"BTC-USDT\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	})

	resp, err := provider.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "price?"}},
	})
	require.NoError(t, err)

	msg := resp.First()
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call-1", msg.ToolCalls[0].ID)
	assert.Equal(t, "get_ticker", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"instId":"BTC-USDT"}`, msg.ToolCalls[0].Function.Arguments)
	assert.Equal(t, FinishReasonToolCalls, resp.Choices[0].FinishReason)
}

func TestChatRateLimited(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
	})

	_, err := provider.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
	assert.True(t, errors.Is(err, errors.ErrExternalService))
}

func TestChatAPIError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"authentication_error"}}`))
	})

	_, err := provider.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalService))
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestChatUnparseableResponse(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := provider.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalService))
}

func TestBaseURLNormalization(t *testing.T) {
	provider, err := NewDeepSeekProvider("k", "https://api.deepseek.com/", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1", provider.baseURL)

	provider, err = NewDeepSeekProvider("k", "https://api.deepseek.com/v1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1", provider.baseURL)
}
