package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

const (
	// ClaudeDefaultModel is used when no model is configured.
	ClaudeDefaultModel = "claude-sonnet-4-5-20250929"
	// ClaudeDefaultEndpoint is the messages URL.
	ClaudeDefaultEndpoint = "https://api.anthropic.com/v1/messages"
	// ClaudeAPIVersion is sent in the anthropic-version header.
	ClaudeAPIVersion = "2023-06-01"

	claudeSystemPrompt = "You are an expert educational grader. Provide objective, constructive feedback. Always respond with valid JSON in the exact format requested."
)

func init() {
	RegisterProviderFactory("claude", newClaudeProvider)
}

var _ ports.AIProvider = (*claudeProvider)(nil)

// claudeProvider sends prompts to the Messages API. Requests are encoded
// from anthropic.MessageNewParams and replies decoded into anthropic.Message.
type claudeProvider struct {
	BaseProvider
}

// claudeErrorBody is the error envelope of the Messages API.
type claudeErrorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func newClaudeProvider(cfg ProviderConfig, exec HTTPExecutor) (ports.AIProvider, error) {
	p := &claudeProvider{}
	if err := p.init("claude", "Claude", ClaudeDefaultModel, ClaudeDefaultEndpoint, cfg, exec); err != nil {
		return nil, err
	}
	return p, nil
}

// Send implements ports.AIProvider.
func (p *claudeProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	if !p.HasCredentials() {
		return nil, p.missingCredentials()
	}

	settings := p.resolve(opts)
	body, err := json.Marshal(p.buildParams(TruncatePrompt(prompt, MaxPromptBytes), settings))
	if err != nil {
		return nil, NewProviderError(p.name, ErrorTypeInvalidRequest, 0, "failed to encode request", err)
	}

	resp, err := p.exec.Execute(ctx, Request{
		URL:    p.endpoint,
		Method: http.MethodPost,
		Headers: map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": ClaudeAPIVersion,
		},
		Body:     body,
		Timeout:  p.timeout,
		Provider: p.name,
	})
	if err != nil {
		return nil, p.callError(resp, err, decodeClaudeError)
	}

	text, err := p.extractText(resp.Body)
	if err != nil {
		return nil, err
	}
	return &domain.AIResponse{
		Provider:   p.name,
		Model:      settings.model,
		Data:       DecodeStructured(text),
		Raw:        text,
		StatusCode: resp.StatusCode,
	}, nil
}

// Parse implements ports.AIProvider.
func (p *claudeProvider) Parse(body []byte) (map[string]any, error) {
	text, err := p.extractText(body)
	if err != nil {
		return nil, err
	}
	return DecodeStructured(text), nil
}

func (p *claudeProvider) buildParams(prompt string, s requestSettings) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(s.temperature),
		System:      []anthropic.TextBlockParam{{Text: claudeSystemPrompt}},
	}
}

// extractText returns the first text block of the reply.
func (p *claudeProvider) extractText(body []byte) (string, error) {
	var msg anthropic.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", p.malformed(err)
	}
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			return tb.Text, nil
		}
	}
	return "", p.malformed(ErrEmptyResponse)
}

func decodeClaudeError(body []byte) string {
	var eb claudeErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return strings.TrimSpace(eb.Error.Message)
}
