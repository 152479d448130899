// Package llm talks to AI text-generation backends. It contains the retrying
// HTTP executor, one adapter per provider, a factory registry and middleware
// for cross-cutting concerns such as metrics, tracing and rate limiting.
package llm

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// Provider defaults shared by every adapter.
const (
	// DefaultMaxTokens bounds the model's output.
	DefaultMaxTokens = 2000
	// DefaultTemperature keeps grading output stable.
	DefaultTemperature = 0.3
	// MaxPromptBytes is the hard cap on prompt size.
	MaxPromptBytes = 100000
	// TruncationMarker is appended to prompts cut at MaxPromptBytes.
	TruncationMarker = "\n\n[Content truncated due to length]"
)

// ProviderConfig holds the per-provider settings.
type ProviderConfig struct {
	// APIKey authenticates requests. An empty key makes the adapter report
	// HasCredentials() == false.
	APIKey string
	// Endpoint overrides the provider's default URL.
	Endpoint string
	// Model overrides the provider's default model.
	Model string
	// MaxTokens overrides DefaultMaxTokens when positive.
	MaxTokens int
	// Temperature overrides DefaultTemperature when set.
	Temperature *float64
	// Timeout bounds each HTTP attempt. Zero uses DefaultRequestTimeout.
	Timeout time.Duration
}

// BaseProvider provides common, thread-safe functionality for all adapters.
type BaseProvider struct {
	mu          sync.RWMutex
	name        string
	displayName string
	model       string
	apiKey      string
	endpoint    string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	exec        HTTPExecutor
}

// init populates b from cfg, falling back to the provider defaults.
func (b *BaseProvider) init(name, displayName, defaultModel, defaultEndpoint string, cfg ProviderConfig, exec HTTPExecutor) error {
	endpoint := defaultEndpoint
	if cfg.Endpoint != "" {
		validated, err := ValidateBaseURL(cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("invalid %s endpoint: %w", name, err)
		}
		endpoint = validated
	}

	b.name = name
	b.displayName = displayName
	b.model = defaultModel
	b.apiKey = cfg.APIKey
	b.endpoint = endpoint
	b.maxTokens = DefaultMaxTokens
	b.temperature = DefaultTemperature
	b.timeout = ValidateTimeout(cfg.Timeout)
	b.exec = exec
	if cfg.Model != "" {
		b.model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		b.maxTokens = cfg.MaxTokens
	}
	if cfg.Temperature != nil && IsValidTemperature(*cfg.Temperature) {
		b.temperature = *cfg.Temperature
	}
	return nil
}

// Name returns the registry name of the provider.
func (b *BaseProvider) Name() string { return b.name }

// Model returns the name of the model currently configured for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) Model() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// HasCredentials reports whether an API key is configured.
func (b *BaseProvider) HasCredentials() bool { return b.apiKey != "" }

// Describe returns the display name and model, e.g. "OpenAI (gpt-4o)".
func (b *BaseProvider) Describe() string {
	return fmt.Sprintf("%s (%s)", b.displayName, b.Model())
}

// requestSettings are the effective values for one request.
type requestSettings struct {
	model       string
	maxTokens   int
	temperature float64
}

func (b *BaseProvider) resolve(opts domain.SendOptions) requestSettings {
	s := requestSettings{
		model:       b.Model(),
		maxTokens:   b.maxTokens,
		temperature: b.temperature,
	}
	if opts.Model != "" {
		s.model = opts.Model
	}
	if opts.MaxTokens > 0 {
		s.maxTokens = opts.MaxTokens
	}
	if opts.Temperature != nil {
		s.temperature = ClampFloat64(*opts.Temperature, MinTemperature, MaxTemperature)
	}
	return s
}

func (b *BaseProvider) missingCredentials() error {
	return NewProviderError(b.name, ErrorTypeMissingCredentials, 0,
		fmt.Sprintf("%s API key not configured", b.displayName), nil)
}

func (b *BaseProvider) malformed(err error) error {
	return NewProviderError(b.name, ErrorTypeMalformedResponse, 0, "Invalid response format", err)
}

// callError attaches the provider name to an executor error and, when the
// provider's error body decodes to a message, uses it as the detail.
func (b *BaseProvider) callError(resp *Response, err error, decode func([]byte) string) error {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return NewProviderError(b.name, ErrorTypeUnknown, 0, "request failed", err)
	}
	out := *perr
	out.Provider = b.name
	if resp != nil && resp.StatusCode >= 400 && decode != nil {
		if msg := decode(resp.Body); msg != "" {
			out.Message = statusMessage(resp.StatusCode, msg)
		}
	}
	return &out
}

// TruncatePrompt caps prompt at limit bytes without splitting a UTF-8
// sequence and appends TruncationMarker when it cuts.
func TruncatePrompt(prompt string, limit int) string {
	if len(prompt) <= limit {
		return prompt
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(prompt[cut]) {
		cut--
	}
	return prompt[:cut] + TruncationMarker
}
