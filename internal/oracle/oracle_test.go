package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradearena/internal/config"
)

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", normalizeBaseURL(""))
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", normalizeBaseURL("https://api.openai.com/v1"))
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", normalizeBaseURL("https://api.openai.com/v1/"))
	// 已含完整路径时不重复拼接
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", normalizeBaseURL("https://api.openai.com/v1/chat/completions"))
	assert.Equal(t, "http://localhost:8000/v1/chat/completions", normalizeBaseURL("http://localhost:8000/v1"))
}

func TestChatClientRetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"ok":true}`}},
			},
		})
	}))
	defer srv.Close()

	c := NewChatClient(ChatClientConfig{
		BaseURL:         srv.URL,
		APIKey:          "sk-test",
		DefaultModel:    "gpt-4o-mini",
		MaxRetries:      3,
		RateLimitPerMin: 6000,
	})
	out, err := c.Query(context.Background(), QueryRequest{Purpose: "analyst", User: "ping"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, 3, calls)
}

func TestChatClientGivesUpOnNonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewChatClient(ChatClientConfig{BaseURL: srv.URL, APIKey: "bad", RateLimitPerMin: 6000})
	_, err := c.Query(context.Background(), QueryRequest{Purpose: "analyst", User: "ping"})
	assert.Error(t, err)
}

func TestScriptedOracleDeterministic(t *testing.T) {
	o := NewScriptedOracle()
	ctx := context.Background()

	req := QueryRequest{Purpose: "trader", User: "same prompt"}
	a, err := o.Query(ctx, req)
	require.NoError(t, err)
	b, err := o.Query(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// 输出是合法 JSON 且含必需字段
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(a), &decoded))
	assert.Contains(t, decoded, "action")
	assert.Contains(t, decoded, "quantity")
}

func TestScriptedOraclePurposeShapes(t *testing.T) {
	o := NewScriptedOracle()
	ctx := context.Background()

	analyst, err := o.Query(ctx, QueryRequest{Purpose: "analyst", User: "technical indicators"})
	require.NoError(t, err)
	var op map[string]any
	require.NoError(t, json.Unmarshal([]byte(analyst), &op))
	assert.Contains(t, op, "signal")
	assert.Contains(t, op, "confidence")

	deb, err := o.Query(ctx, QueryRequest{Purpose: "debate", User: "you are the bear skeptic"})
	require.NoError(t, err)
	var arg map[string]any
	require.NoError(t, json.Unmarshal([]byte(deb), &arg))
	assert.Equal(t, "skeptic", arg["side"])
	assert.NotEmpty(t, arg["argument"])
}

func TestNewFromConfig(t *testing.T) {
	o, err := NewFromConfig(config.OracleConfig{Provider: "scripted"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", o.Name())

	o, err = NewFromConfig(config.OracleConfig{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", o.Name())

	_, err = NewFromConfig(config.OracleConfig{Provider: "haruspex"})
	assert.Error(t, err)
}
