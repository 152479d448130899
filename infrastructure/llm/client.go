package llm

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kcay/local-ai-grader/internal/ports"
)

// ProviderFactory builds an adapter from its configuration and the executor
// it should send requests through.
type ProviderFactory func(cfg ProviderConfig, exec HTTPExecutor) (ports.AIProvider, error)

// Middleware wraps an AIProvider to add cross-cutting functionality.
// This pattern allows composition of features like rate limiting,
// metrics collection and tracing without modifying adapter logic.
type Middleware func(ports.AIProvider) ports.AIProvider

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory registers a provider under name. Adapters call it
// from init; registering a name twice replaces the earlier factory.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[name] = factory
}

// GetProviderFactory returns the factory registered under name.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[name]
	return f, ok
}

// RegisteredProviders returns the sorted names of all registered providers.
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewProvider builds the named adapter and wraps it with middleware. The
// first middleware is the outermost.
func NewProvider(name string, cfg ProviderConfig, exec HTTPExecutor, middleware ...Middleware) (ports.AIProvider, error) {
	factory, ok := GetProviderFactory(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrProviderNotRegistered, name)
	}
	if exec == nil {
		exec = NewRetryingExecutor(DefaultRetryConfig())
	}

	provider, err := factory(cfg, exec)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		provider = middleware[i](provider)
	}
	return provider, nil
}
