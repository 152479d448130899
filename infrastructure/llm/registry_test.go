package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

func TestRegisteredProviders(t *testing.T) {
	names := RegisteredProviders()
	assert.Subset(t, names, []string{"claude", "gemini", "openai"})
	assert.IsIncreasing(t, names)

	for name := range DefaultProviders {
		_, ok := GetProviderFactory(name)
		assert.True(t, ok, name)
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider("llama", ProviderConfig{}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrProviderNotRegistered))
	assert.Contains(t, err.Error(), "llama")
}

func TestNewProvider_InvalidEndpoint(t *testing.T) {
	_, err := NewProvider("openai", ProviderConfig{Endpoint: "ftp://example.com"}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid openai endpoint")
}

func TestNewProvider_MiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next ports.AIProvider) ports.AIProvider {
			return &orderProvider{AIProvider: next, name: name, order: &order}
		}
	}

	p, err := NewProvider("openai", ProviderConfig{}, fastExecutor(), tag("outer"), tag("inner"))
	require.NoError(t, err)

	_, _ = p.Send(context.Background(), "x", domain.SendOptions{})
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type orderProvider struct {
	ports.AIProvider
	name  string
	order *[]string
}

func (o *orderProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	*o.order = append(*o.order, o.name)
	return o.AIProvider.Send(ctx, prompt, opts)
}

func TestRegistry_CachesProviders(t *testing.T) {
	reg := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{"openai": {APIKey: "k", Model: "gpt-4o-mini"}},
		Executor:  fastExecutor(),
	})

	var wg sync.WaitGroup
	got := make([]ports.AIProvider, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.Provider("openai")
			assert.NoError(t, err)
			got[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range got[1:] {
		assert.Same(t, got[0], p)
	}
	assert.Equal(t, "gpt-4o-mini", got[0].Model())
	assert.True(t, got[0].HasCredentials())
}

func TestRegistry_UnconfiguredProviderHasNoKey(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})

	p, err := reg.Provider("claude")
	require.NoError(t, err)
	assert.False(t, p.HasCredentials())
	assert.Equal(t, ClaudeDefaultModel, p.Model())
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})

	_, err := reg.Provider("")
	assert.Error(t, err)

	_, err = reg.Provider("nope")
	assert.True(t, errors.Is(err, ports.ErrProviderNotRegistered))
}

func TestRegistry_Configured(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Providers: map[string]ProviderConfig{
		"gemini": {APIKey: "g"},
		"openai": {APIKey: "o"},
		"claude": {},
	}})

	assert.Equal(t, []string{"gemini", "openai"}, reg.Configured())
}

func TestRegistry_AppliesMiddleware(t *testing.T) {
	srv, _ := fakeEndpoint(t, http.StatusOK, openAIReply)
	collector := &recordingCollector{}
	reg := NewRegistry(RegistryConfig{
		Providers:  map[string]ProviderConfig{"openai": {APIKey: "k", Endpoint: srv.URL}},
		Executor:   fastExecutor(),
		Middleware: []Middleware{MetricsMiddleware(collector)},
	})

	p, err := reg.Provider("openai")
	require.NoError(t, err)
	_, err = p.Send(context.Background(), "x", domain.SendOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, collector.counter("ai_requests_total"))
}
