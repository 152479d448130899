package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kcay/local-ai-grader/infrastructure/llm"
	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// MockProvider implements ports.AIProvider with deterministic replies for
// consistent testing of the grading pipeline without network access.
// Replies are chosen by substring matching against the prompt.
type MockProvider struct {
	mu sync.Mutex
	// name is the registry name reported by Name.
	name string
	// model is the mock model identifier.
	model string
	// responses maps prompt patterns to raw reply text.
	responses map[string]string
	// order keeps patterns in the order they were added so that matching is
	// deterministic.
	order []string
	// err, when set, is returned by every Send.
	err error
	// prompts records every prompt received.
	prompts []string
	// noCredentials makes HasCredentials report false.
	noCredentials bool
}

// MockResponse defines a pre-configured reply pattern for the mock provider.
type MockResponse struct {
	// Pattern is matched case-insensitively against prompts. The empty
	// pattern is the fallback reply.
	Pattern string
	// Response is the raw reply text, normally a JSON object.
	Response string
}

// NewMockProvider creates a MockProvider with a default reply for each
// grading mode. Simple prompts get a score of 16, discrete rubric prompts
// and ranged prompts get criterion scores keyed by position.
func NewMockProvider(name, model string) *MockProvider {
	m := &MockProvider{
		name:      name,
		model:     model,
		responses: make(map[string]string),
	}
	m.setupDefaultResponses()
	return m
}

func (m *MockProvider) setupDefaultResponses() {
	m.AddResponse(MockResponse{
		Pattern: "score range",
		Response: `{"criteria_scores": [{"criterion_id": 1, "score": 18, "feedback": "Strong argument"},
			{"criterion_id": 2, "score": 8, "feedback": "Minor slips"}], "overall_feedback": "Good work"}`,
	})
	m.AddResponse(MockResponse{
		Pattern: "level_id",
		Response: `{"criteria_scores": [{"criterion_id": 1, "level_id": 1, "score": 20, "feedback": "Excellent"}],
			"overall_feedback": "Well done"}`,
	})
	m.AddResponse(MockResponse{
		Pattern:  "",
		Response: `{"score": 16, "feedback": "Clear and well organised.", "strengths": ["Structure"], "improvements": ["Cite sources"]}`,
	})
}

// AddResponse adds or replaces a reply pattern. Later patterns are checked
// before earlier ones.
func (m *MockProvider) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pattern := strings.ToLower(r.Pattern)
	if _, ok := m.responses[pattern]; !ok {
		m.order = append([]string{pattern}, m.order...)
	}
	m.responses[pattern] = r.Response
}

// SetResponse replaces every pattern with a single reply.
func (m *MockProvider) SetResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = map[string]string{"": response}
	m.order = []string{""}
}

// SetError makes every subsequent Send fail with err.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetCredentials controls what HasCredentials reports.
func (m *MockProvider) SetCredentials(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noCredentials = !ok
}

// Prompts returns a copy of the prompts received so far.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Name implements ports.AIProvider.
func (m *MockProvider) Name() string { return m.name }

// Model implements ports.AIProvider.
func (m *MockProvider) Model() string { return m.model }

// HasCredentials implements ports.AIProvider.
func (m *MockProvider) HasCredentials() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.noCredentials
}

// Send implements ports.AIProvider by matching prompt against the
// configured patterns.
func (m *MockProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	err, creds := m.err, !m.noCredentials
	raw := m.findMatchingResponse(prompt)
	m.mu.Unlock()

	if !creds {
		return nil, fmt.Errorf("mock provider %s: %w", m.name, domain.ErrMissingCredentials)
	}
	if err != nil {
		return nil, err
	}

	model := m.model
	if opts.Model != "" {
		model = opts.Model
	}
	return &domain.AIResponse{
		Provider:   m.name,
		Model:      model,
		Data:       llm.DecodeStructured(raw),
		Raw:        raw,
		StatusCode: 200,
	}, nil
}

// Parse implements ports.AIProvider. The mock treats body as reply text.
func (m *MockProvider) Parse(body []byte) (map[string]any, error) {
	return llm.DecodeStructured(string(body)), nil
}

func (m *MockProvider) findMatchingResponse(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, pattern := range m.order {
		if pattern != "" && strings.Contains(lower, pattern) {
			return m.responses[pattern]
		}
	}
	return m.responses[""]
}

// ProviderMap is a ports.ProviderSource over a fixed set of providers.
type ProviderMap map[string]ports.AIProvider

// Provider implements ports.ProviderSource.
func (p ProviderMap) Provider(name string) (ports.AIProvider, error) {
	if prov, ok := p[name]; ok {
		return prov, nil
	}
	return nil, fmt.Errorf("%w: %s", ports.ErrProviderNotRegistered, name)
}

// Verify interface compliance at compile time.
var (
	_ ports.AIProvider     = (*MockProvider)(nil)
	_ ports.ProviderSource = ProviderMap(nil)
)
