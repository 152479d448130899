package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

const (
	// GeminiDefaultModel is used when no model is configured.
	GeminiDefaultModel = "gemini-2.0-flash-exp"
	// GeminiDefaultEndpoint is the generateContent URL template. {model} is
	// replaced per request and the key travels in the query string.
	GeminiDefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/{model}:generateContent"

	geminiSystemPrompt = "You are an expert educational grader. Provide objective, constructive feedback. Always respond with valid JSON in the exact format requested."
)

func init() {
	RegisterProviderFactory("gemini", newGeminiProvider)
}

var _ ports.AIProvider = (*geminiProvider)(nil)

// geminiProvider sends prompts to the Generative Language REST API using
// the genai content types as the request and response envelope.
type geminiProvider struct {
	BaseProvider
}

// geminiRequest is the generateContent body.
type geminiRequest struct {
	Contents         []*genai.Content        `json:"contents"`
	GenerationConfig *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

func newGeminiProvider(cfg ProviderConfig, exec HTTPExecutor) (ports.AIProvider, error) {
	p := &geminiProvider{}
	if err := p.init("gemini", "Gemini", GeminiDefaultModel, GeminiDefaultEndpoint, cfg, exec); err != nil {
		return nil, err
	}
	return p, nil
}

// Send implements ports.AIProvider.
func (p *geminiProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	if !p.HasCredentials() {
		return nil, p.missingCredentials()
	}

	settings := p.resolve(opts)
	body, err := json.Marshal(p.buildRequest(TruncatePrompt(prompt, MaxPromptBytes), settings))
	if err != nil {
		return nil, NewProviderError(p.name, ErrorTypeInvalidRequest, 0, "failed to encode request", err)
	}

	resp, err := p.exec.Execute(ctx, Request{
		URL:      p.requestURL(settings.model),
		Method:   http.MethodPost,
		Body:     body,
		Timeout:  p.timeout,
		Provider: p.name,
	})
	if err != nil {
		return nil, p.callError(resp, err, decodeGeminiError)
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
func (p *geminiProvider) Parse(body []byte) (map[string]any, error) {
	text, err := p.extractText(body)
	if err != nil {
		return nil, err
	}
	return DecodeStructured(text), nil
}

func (p *geminiProvider) requestURL(model string) string {
	endpoint := strings.ReplaceAll(p.endpoint, "{model}", url.PathEscape(model))
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "key=" + url.QueryEscape(p.apiKey)
}

// buildRequest folds the system instruction into the single user turn, the
// shape the v1beta endpoint accepts for every model.
func (p *geminiProvider) buildRequest(prompt string, s requestSettings) geminiRequest {
	return geminiRequest{
		Contents: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: geminiSystemPrompt + "\n\n" + prompt}},
		}},
		GenerationConfig: &genai.GenerationConfig{
			Temperature:      genai.Ptr(float32(s.temperature)),
			MaxOutputTokens:  int32(s.maxTokens),
			ResponseMIMEType: "application/json",
		},
	}
}

func (p *geminiProvider) extractText(body []byte) (string, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", p.malformed(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0] == nil {
		return "", p.malformed(ErrNoResponseChoice)
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func decodeGeminiError(body []byte) string {
	var envelope struct {
		Error *googleapi.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return ""
	}
	return envelope.Error.Message
}
