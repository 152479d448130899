package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcay/local-ai-grader/internal/domain"
)

const claudeReply = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5-20250929",
  "content": [{"type": "text", "text": "Here you go:\n{\"score\": 14, \"feedback\": \"Clear\"}"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 10, "output_tokens": 5}
}`

func TestClaudeProvider_Send(t *testing.T) {
	srv, captured := fakeEndpoint(t, http.StatusOK, claudeReply)
	p, err := NewProvider("claude", ProviderConfig{APIKey: "ant-key", Endpoint: srv.URL + "/v1/messages"}, fastExecutor())
	require.NoError(t, err)

	resp, err := p.Send(context.Background(), "grade", domain.SendOptions{MaxTokens: 1024})
	require.NoError(t, err)

	assert.Equal(t, "claude", resp.Provider)
	assert.Equal(t, 14.0, resp.Data["score"], "object embedded in prose is recovered")

	got := (*captured)[0]
	assert.Equal(t, "ant-key", got.Headers.Get("x-api-key"))
	assert.Equal(t, ClaudeAPIVersion, got.Headers.Get("anthropic-version"))
	assert.Equal(t, "application/json", got.Headers.Get("Content-Type"))

	var req struct {
		Model     string  `json:"model"`
		MaxTokens int     `json:"max_tokens"`
		Temp      float64 `json:"temperature"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(got.Body, &req))
	assert.Equal(t, ClaudeDefaultModel, req.Model)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.InDelta(t, DefaultTemperature, req.Temp, 1e-9)
	require.Len(t, req.System, 1)
	assert.Equal(t, claudeSystemPrompt, req.System[0].Text)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	require.Len(t, req.Messages[0].Content, 1)
	assert.Equal(t, "grade", req.Messages[0].Content[0].Text)
}

func TestClaudeProvider_ErrorBody(t *testing.T) {
	srv, captured := fakeEndpoint(t, http.StatusBadRequest,
		`{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens: too large"}}`)
	p, err := NewProvider("claude", ProviderConfig{APIKey: "k", Endpoint: srv.URL}, fastExecutor())
	require.NoError(t, err)

	_, err = p.Send(context.Background(), "x", domain.SendOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrClientError))
	assert.Contains(t, err.Error(), "client error (400): max_tokens: too large")
	assert.Len(t, *captured, 1)
}

func TestClaudeProvider_NoTextBlock(t *testing.T) {
	p, err := NewProvider("claude", ProviderConfig{APIKey: "k"}, fastExecutor())
	require.NoError(t, err)

	_, err = p.Parse([]byte(`{"type": "message", "content": []}`))
	assert.True(t, errors.Is(err, domain.ErrMalformedAIOutput))
}

func TestClaudeProvider_MissingCredentials(t *testing.T) {
	p, err := NewProvider("claude", ProviderConfig{}, fastExecutor())
	require.NoError(t, err)

	_, err = p.Send(context.Background(), "x", domain.SendOptions{})
	assert.True(t, errors.Is(err, domain.ErrMissingCredentials))
	assert.Contains(t, err.Error(), "Claude API key not configured")
}
