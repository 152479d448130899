package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets every request through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single trial request through.
	CircuitHalfOpen
)

// String returns the state name used in logs and metrics.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a provider after repeated transient failures.
// Only failures that still look transient after the executor has exhausted
// its retries count toward tripping; credential and client errors say
// nothing about provider health.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       CircuitState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	trial       bool
	now         func() time.Time
}

// NewCircuitBreaker creates a breaker that opens after maxFailures
// consecutive transient failures and stays open for cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		state:       CircuitClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// State reports the current state, moving open to half-open once the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// allow reserves permission for one call. The lock is not held while the
// call runs.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()

	switch cb.state {
	case CircuitOpen:
		return false
	case CircuitHalfOpen:
		if cb.trial {
			return false
		}
		cb.trial = true
		return true
	default:
		return true
	}
}

// record updates the breaker with a call outcome and reports whether the
// circuit opened because of it.
func (cb *CircuitBreaker) record(err error) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	halfOpen := cb.state == CircuitHalfOpen
	cb.trial = false

	if !errors.Is(err, domain.ErrTransientNetwork) {
		cb.failures = 0
		cb.state = CircuitClosed
		return false
	}

	cb.failures++
	if halfOpen || cb.failures >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		return true
	}
	return false
}

// release frees a half-open trial slot when the call ended without a
// verdict on provider health, such as a cancelled context.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trial = false
}

func (cb *CircuitBreaker) advance() {
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.state = CircuitHalfOpen
		cb.trial = false
	}
}

// breakerProvider guards a provider with its own circuit breaker.
type breakerProvider struct {
	ports.AIProvider
	breaker   *CircuitBreaker
	collector ports.MetricsCollector
}

// CircuitBreakerMiddleware creates middleware that fails fast while a
// provider is unhealthy. Each wrapped provider gets its own breaker.
// Rejections are transient provider errors wrapping ErrCircuitOpen, so
// callers record them as retryable failures.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration, collector ports.MetricsCollector) Middleware {
	return func(next ports.AIProvider) ports.AIProvider {
		return &breakerProvider{
			AIProvider: next,
			breaker:    NewCircuitBreaker(maxFailures, cooldown),
			collector:  collector,
		}
	}
}

// Send forwards the request unless the circuit is open.
func (b *breakerProvider) Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error) {
	if !b.HasCredentials() {
		return b.AIProvider.Send(ctx, prompt, opts)
	}
	if !b.breaker.allow() {
		if b.collector != nil {
			b.collector.RecordCounter("circuit_events_total", 1, map[string]string{"provider": b.Name(), "event": "rejected"})
		}
		return nil, NewProviderError(b.Name(), ErrorTypeNetwork, http.StatusServiceUnavailable,
			"provider unavailable, retry later", ErrCircuitOpen)
	}

	resp, err := b.AIProvider.Send(ctx, prompt, opts)
	if err != nil && ctx.Err() != nil {
		b.breaker.release()
		return resp, err
	}
	if b.breaker.record(err) && b.collector != nil {
		b.collector.RecordCounter("circuit_events_total", 1, map[string]string{"provider": b.Name(), "event": "opened"})
	}
	return resp, err
}
