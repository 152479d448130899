package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcay/local-ai-grader/internal/domain"
)

const openAIReply = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "` +
	"```json\\n{\\\"score\\\": 8, \\\"feedback\\\": \\\"Good\\\"}\\n```" + `"}, "finish_reason": "stop"}]
}`

func TestOpenAIProvider_Send(t *testing.T) {
	srv, captured := fakeEndpoint(t, http.StatusOK, openAIReply)

	p, err := NewProvider("openai", ProviderConfig{APIKey: "sk-test", Endpoint: srv.URL + "/v1/chat/completions"}, fastExecutor())
	require.NoError(t, err)

	temp := 0.7
	resp, err := p.Send(context.Background(), "grade this", domain.SendOptions{MaxTokens: 500, Temperature: &temp})
	require.NoError(t, err)

	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, OpenAIDefaultModel, resp.Model)
	assert.Equal(t, map[string]any{"score": 8.0, "feedback": "Good"}, resp.Data)
	assert.Contains(t, resp.Raw, "```json")

	require.Len(t, *captured, 1)
	got := (*captured)[0]
	assert.Equal(t, "Bearer sk-test", got.Headers.Get("Authorization"))
	assert.Equal(t, "/v1/chat/completions", got.Path)

	var req openai.ChatCompletionRequest
	require.NoError(t, json.Unmarshal(got.Body, &req))
	assert.Equal(t, OpenAIDefaultModel, req.Model)
	assert.Equal(t, 500, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, openAISystemPrompt, req.Messages[0].Content)
	assert.Equal(t, "grade this", req.Messages[1].Content)
}

func TestOpenAIProvider_Defaults(t *testing.T) {
	srv, captured := fakeEndpoint(t, http.StatusOK, openAIReply)
	p, err := NewProvider("openai", ProviderConfig{APIKey: "k", Endpoint: srv.URL}, fastExecutor())
	require.NoError(t, err)

	_, err = p.Send(context.Background(), "x", domain.SendOptions{})
	require.NoError(t, err)

	var req openai.ChatCompletionRequest
	require.NoError(t, json.Unmarshal((*captured)[0].Body, &req))
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.InDelta(t, DefaultTemperature, req.Temperature, 1e-6)
}

func TestOpenAIProvider_MissingCredentials(t *testing.T) {
	srv, captured := fakeEndpoint(t, http.StatusOK, openAIReply)
	p, err := NewProvider("openai", ProviderConfig{Endpoint: srv.URL}, fastExecutor())
	require.NoError(t, err)

	assert.False(t, p.HasCredentials())
	_, err = p.Send(context.Background(), "x", domain.SendOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingCredentials))
	assert.Contains(t, err.Error(), "OpenAI API key not configured")
	assert.Empty(t, *captured, "no network call without credentials")
}

func TestOpenAIProvider_ClientErrorUsesAPIMessage(t *testing.T) {
	srv, captured := fakeEndpoint(t, http.StatusUnauthorized,
		`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)
	p, err := NewProvider("openai", ProviderConfig{APIKey: "bad", Endpoint: srv.URL}, fastExecutor())
	require.NoError(t, err)

	_, err = p.Send(context.Background(), "x", domain.SendOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrClientError))
	assert.Contains(t, err.Error(), "client error (401): Incorrect API key provided")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "openai", perr.Provider)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Len(t, *captured, 1)
}

func TestOpenAIProvider_TruncatesPrompt(t *testing.T) {
	srv, captured := fakeEndpoint(t, http.StatusOK, openAIReply)
	p, err := NewProvider("openai", ProviderConfig{APIKey: "k", Endpoint: srv.URL}, fastExecutor())
	require.NoError(t, err)

	_, err = p.Send(context.Background(), strings.Repeat("a", MaxPromptBytes+500), domain.SendOptions{})
	require.NoError(t, err)

	var req openai.ChatCompletionRequest
	require.NoError(t, json.Unmarshal((*captured)[0].Body, &req))
	user := req.Messages[1].Content
	assert.True(t, strings.HasSuffix(user, TruncationMarker))
	assert.Len(t, user, MaxPromptBytes+len(TruncationMarker))
}

func TestOpenAIProvider_Parse(t *testing.T) {
	p, err := NewProvider("openai", ProviderConfig{APIKey: "k"}, fastExecutor())
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "plain json",
			body: `{"choices":[{"message":{"content":"{\"score\": 3}"}}]}`,
			want: map[string]any{"score": 3.0},
		},
		{
			name: "prose falls back to content",
			body: `{"choices":[{"message":{"content":"I cannot grade this."}}]}`,
			want: map[string]any{"content": "I cannot grade this."},
		},
		{
			name:    "no choices",
			body:    `{"choices":[]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse([]byte(tt.body))
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrMalformedAIOutput))
				assert.Contains(t, err.Error(), "Invalid response format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
