package llm

import (
	"fmt"
	"sync"

	"github.com/kcay/local-ai-grader/internal/ports"
)

// ProviderSpec is the static description of a built-in provider.
type ProviderSpec struct {
	// DisplayName is used in messages, e.g. "OpenAI".
	DisplayName string
	// EnvVar names the conventional environment variable holding the key.
	EnvVar string
	// DefaultModel is the model used when none is configured.
	DefaultModel string
	// DefaultEndpoint is the request URL or URL template.
	DefaultEndpoint string
}

// DefaultProviders describes the built-in adapters.
var DefaultProviders = map[string]ProviderSpec{
	"openai": {
		DisplayName:     "OpenAI",
		EnvVar:          "OPENAI_API_KEY",
		DefaultModel:    OpenAIDefaultModel,
		DefaultEndpoint: OpenAIDefaultEndpoint,
	},
	"gemini": {
		DisplayName:     "Gemini",
		EnvVar:          "GEMINI_API_KEY",
		DefaultModel:    GeminiDefaultModel,
		DefaultEndpoint: GeminiDefaultEndpoint,
	},
	"claude": {
		DisplayName:     "Claude",
		EnvVar:          "ANTHROPIC_API_KEY",
		DefaultModel:    ClaudeDefaultModel,
		DefaultEndpoint: ClaudeDefaultEndpoint,
	},
}

// RegistryConfig holds configuration for the provider registry.
type RegistryConfig struct {
	// Providers maps registry names to adapter settings. A provider missing
	// from the map is still available with default settings and no key.
	Providers map[string]ProviderConfig
	// Executor is shared by all adapters. Nil uses a default RetryingExecutor.
	Executor HTTPExecutor
	// Middleware is applied to every adapter, first entry outermost.
	Middleware []Middleware
}

var _ ports.ProviderSource = (*Registry)(nil)

// Registry creates adapters lazily on first use and caches them.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	configs    map[string]ProviderConfig
	exec       HTTPExecutor
	middleware []Middleware
	providers  map[string]ports.AIProvider
}

// NewRegistry creates a registry from config.
func NewRegistry(config RegistryConfig) *Registry {
	exec := config.Executor
	if exec == nil {
		exec = NewRetryingExecutor(DefaultRetryConfig())
	}
	configs := make(map[string]ProviderConfig, len(config.Providers))
	for name, cfg := range config.Providers {
		configs[name] = cfg
	}
	return &Registry{
		configs:    configs,
		exec:       exec,
		middleware: config.Middleware,
		providers:  make(map[string]ports.AIProvider),
	}
}

// Provider returns the adapter registered under name.
func (r *Registry) Provider(name string) (ports.AIProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}

	r.mu.RLock()
	if p, ok := r.providers[name]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}

	p, err := NewProvider(name, r.configs[name], r.exec, r.middleware...)
	if err != nil {
		return nil, err
	}
	r.providers[name] = p
	return p, nil
}

// Configured returns the names of registered providers that have an API key.
func (r *Registry) Configured() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range RegisteredProviders() {
		if r.configs[name].APIKey != "" {
			names = append(names, name)
		}
	}
	return names
}
