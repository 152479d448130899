package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// rateLimitedProvider implements rate limiting using a token bucket algorithm.
// This keeps batch grading under the provider's request quota.
type rateLimitedProvider struct {
	ports.AIProvider
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting.
// The limit parameter sets requests per second, while burst allows
// temporary spikes above the sustained rate. All providers wrapped by the
// returned middleware share one bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.AIProvider) ports.AIProvider {
		return &rateLimitedProvider{AIProvider: next, limiter: limiter}
	}
}

// Send waits for rate limit permission before forwarding the request.
// Requests without credentials fail fast without consuming a token.
func (r *rateLimitedProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	if r.HasCredentials() {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	return r.AIProvider.Send(ctx, prompt, opts)
}
