package llm

import (
	"context"
	"errors"
	"time"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// metricsProvider implements request metrics collection.
// This provides observability into request patterns, latency and error
// rates per provider and model.
type metricsProvider struct {
	ports.AIProvider
	collector ports.MetricsCollector
	estimator TokenEstimator
}

// MetricsMiddleware creates middleware that collects request metrics.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next ports.AIProvider) ports.AIProvider {
		return &metricsProvider{AIProvider: next, collector: collector, estimator: EstimatorFor(next.Name())}
	}
}

// Send executes the request while recording latency, an outcome counter and
// the estimated size of the prompt as sent.
func (m *metricsProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	start := time.Now()
	resp, err := m.AIProvider.Send(ctx, prompt, opts)

	if m.collector == nil {
		return resp, err
	}

	labels := map[string]string{
		"provider": m.Name(),
		"model":    m.Model(),
		"status":   sendStatus(err),
	}
	m.collector.RecordHistogram("ai_request_duration_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordHistogram("ai_prompt_tokens", float64(m.estimator.EstimateTokens(TruncatePrompt(prompt, MaxPromptBytes))),
		map[string]string{"provider": m.Name()})
	m.collector.RecordCounter("ai_requests_total", 1, labels)
	if err == nil && !resp.Structured() {
		m.collector.RecordCounter("ai_unstructured_responses_total", 1, map[string]string{"provider": m.Name()})
	}
	return resp, err
}

func sendStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrMissingCredentials):
		return "missing_credentials"
	case errors.Is(err, domain.ErrTransientNetwork):
		return "transient"
	case errors.Is(err, domain.ErrClientError):
		return "client_error"
	case errors.Is(err, domain.ErrMalformedAIOutput):
		return "malformed"
	default:
		return "error"
	}
}
