package llm

import (
	"context"
	"encoding/json"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

const (
	// OpenAIDefaultModel is used when no model is configured.
	OpenAIDefaultModel = "gpt-4o"
	// OpenAIDefaultEndpoint is the chat completions URL.
	OpenAIDefaultEndpoint = "https://api.openai.com/v1/chat/completions"

	openAISystemPrompt = "You are an expert educational grader. Provide objective, constructive feedback. Always respond with valid JSON."
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

var _ ports.AIProvider = (*openAIProvider)(nil)

// openAIProvider sends prompts to the chat completions API. The go-openai
// request and response types serve as the wire envelope; transport goes
// through the shared HTTPExecutor so retries are uniform across providers.
type openAIProvider struct {
	BaseProvider
}

func newOpenAIProvider(cfg ProviderConfig, exec HTTPExecutor) (ports.AIProvider, error) {
	p := &openAIProvider{}
	if err := p.init("openai", "OpenAI", OpenAIDefaultModel, OpenAIDefaultEndpoint, cfg, exec); err != nil {
		return nil, err
	}
	return p, nil
}

// Send implements ports.AIProvider.
func (p *openAIProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	if !p.HasCredentials() {
		return nil, p.missingCredentials()
	}

	settings := p.resolve(opts)
	body, err := json.Marshal(p.buildRequest(TruncatePrompt(prompt, MaxPromptBytes), settings))
	if err != nil {
		return nil, NewProviderError(p.name, ErrorTypeInvalidRequest, 0, "failed to encode request", err)
	}

	resp, err := p.exec.Execute(ctx, Request{
		URL:    p.endpoint,
		Method: http.MethodPost,
		Headers: map[string]string{
			"Authorization": "Bearer " + p.apiKey,
		},
		Body:     body,
		Timeout:  p.timeout,
		Provider: p.name,
	})
	if err != nil {
		return nil, p.callError(resp, err, decodeOpenAIError)
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
func (p *openAIProvider) Parse(body []byte) (map[string]any, error) {
	text, err := p.extractText(body)
	if err != nil {
		return nil, err
	}
	return DecodeStructured(text), nil
}

func (p *openAIProvider) buildRequest(prompt string, s requestSettings) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openAISystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.maxTokens,
		Temperature: float32(s.temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

func (p *openAIProvider) extractText(body []byte) (string, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", p.malformed(err)
	}
	if len(resp.Choices) == 0 {
		return "", p.malformed(ErrNoResponseChoice)
	}
	return resp.Choices[0].Message.Content, nil
}

func decodeOpenAIError(body []byte) string {
	var er openai.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error == nil {
		return ""
	}
	return er.Error.Message
}
