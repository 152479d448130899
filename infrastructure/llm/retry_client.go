package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kcay/local-ai-grader/internal/ports"
)

// Default retry configuration constants.
const (
	// DefaultMaxAttempts is the default number of HTTP attempts per request.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the backoff unit. The n-th retry waits
	// BaseDelay * 2^n, capped at MaxDelay.
	DefaultBaseDelay = 1 * time.Second
	// DefaultMaxDelay is the default maximum delay between attempts.
	DefaultMaxDelay = 30 * time.Second
	// DefaultRequestTimeout bounds a single attempt.
	DefaultRequestTimeout = 60 * time.Second
)

// RetryConfig defines the configuration for retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the backoff unit.
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// JitterPercent adds up to this fraction of the delay at random.
	// Zero keeps backoff deterministic.
	JitterPercent float64
}

// DefaultRetryConfig returns a RetryConfig with the default values.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Request describes one logical HTTP call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	// Timeout bounds each attempt. Zero means DefaultRequestTimeout.
	Timeout time.Duration
	// Provider labels errors, logs and metrics.
	Provider string
}

// Response is the outcome of the last attempt. On failure it still carries
// the last status code (0 if the network was never reached) and body.
type Response struct {
	StatusCode int
	Body       []byte
	// Data is the decoded JSON body, or the body as a string when it is not JSON.
	Data     any
	Attempts int
}

// HTTPExecutor issues requests on behalf of provider adapters.
type HTTPExecutor interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

var _ HTTPExecutor = (*RetryingExecutor)(nil)

var supportedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
}

// RetryingExecutor executes HTTP requests with bounded exponential backoff.
// It is safe for concurrent use; a backoff sleep blocks only the calling
// goroutine.
type RetryingExecutor struct {
	client  *http.Client
	config  RetryConfig
	logger  zerolog.Logger
	metrics ports.MetricsCollector
	sleep   func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures a RetryingExecutor.
type ExecutorOption func(*RetryingExecutor)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *RetryingExecutor) { e.client = c }
}

// WithLogger sets the logger used for per-attempt diagnostics.
func WithLogger(l zerolog.Logger) ExecutorOption {
	return func(e *RetryingExecutor) {
		e.logger = l.With().Str("component", "http_executor").Logger()
	}
}

// WithMetrics records attempt counters and latencies.
func WithMetrics(m ports.MetricsCollector) ExecutorOption {
	return func(e *RetryingExecutor) { e.metrics = m }
}

// NewRetryingExecutor creates an executor with the given retry behavior.
func NewRetryingExecutor(config RetryConfig, opts ...ExecutorOption) *RetryingExecutor {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	e := &RetryingExecutor{
		client: &http.Client{},
		config: config,
		logger: zerolog.Nop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates req and performs it, retrying transient failures.
// Invalid URLs and unsupported methods fail without touching the network.
func (e *RetryingExecutor) Execute(ctx context.Context, req Request) (*Response, error) {
	classifier := &ErrorClassifier{Provider: req.Provider}

	target, err := validateRequestURL(req.URL)
	if err != nil {
		return &Response{}, NewProviderError(req.Provider, ErrorTypeInvalidRequest, 0, "invalid or empty URL", redactURLError(err))
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	if _, ok := supportedMethods[method]; !ok {
		return &Response{}, NewProviderError(req.Provider, ErrorTypeInvalidRequest, 0,
			fmt.Sprintf("unsupported HTTP method: %s", req.Method), nil)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	last := &Response{}
	var lastErr *ProviderError
	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		start := time.Now()
		resp, perr := e.attempt(ctx, classifier, method, req, timeout)
		resp.Attempts = attempt
		e.recordAttempt(req.Provider, resp.StatusCode, perr, time.Since(start))

		evt := e.logger.Debug().
			Str("provider", req.Provider).
			Str("host", target.Host).
			Int("attempt", attempt).
			Int("max_attempts", e.config.MaxAttempts).
			Int("status_code", resp.StatusCode)
		if perr != nil {
			evt = evt.Err(perr)
		}
		evt.Msg("http attempt finished")

		if perr == nil {
			return resp, nil
		}

		last, lastErr = resp, perr
		if !perr.IsRetryable() || attempt == e.config.MaxAttempts {
			break
		}

		delay := e.backoff(attempt)
		e.logger.Warn().
			Str("provider", req.Provider).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(perr).
			Msg("retrying request")

		if err := e.sleep(ctx, delay); err != nil {
			return last, classifier.ClassifyContextError(err)
		}
	}

	return last, lastErr
}

// attempt performs a single round trip and classifies the outcome.
func (e *RetryingExecutor) attempt(
	ctx context.Context,
	classifier *ErrorClassifier,
	method string,
	req Request,
	timeout time.Duration,
) (*Response, *ProviderError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return &Response{}, NewProviderError(req.Provider, ErrorTypeInvalidRequest, 0, "failed to build request", redactURLError(err))
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		if attemptCtx.Err() != nil {
			return &Response{}, classifier.ClassifyContextError(attemptCtx.Err())
		}
		return &Response{}, NewProviderError(req.Provider, ErrorTypeNetwork, 0, "connection failed", redactURLError(err))
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	resp := &Response{StatusCode: httpResp.StatusCode, Body: raw}
	if err != nil {
		return resp, NewProviderError(req.Provider, ErrorTypeNetwork, httpResp.StatusCode, "failed to read response body", err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			resp.Data = string(raw)
		} else {
			resp.Data = decoded
		}
		return resp, nil
	}

	return resp, classifier.ClassifyHTTPError(httpResp.StatusCode, string(raw), nil)
}

// backoff returns the delay before the retry that follows the given number of
// completed attempts.
func (e *RetryingExecutor) backoff(completed int) time.Duration {
	delay := time.Duration(float64(e.config.BaseDelay) * math.Pow(2, float64(completed)))
	if e.config.JitterPercent > 0 {
		delay += time.Duration(rand.Float64() * e.config.JitterPercent * float64(delay))
	}
	if e.config.MaxDelay > 0 && delay > e.config.MaxDelay {
		delay = e.config.MaxDelay
	}
	return delay
}

// redactURLError drops the query string from the URL a transport error
// prints. Gemini carries its API key there.
func redactURLError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	redacted := uerr.URL
	if u, perr := url.Parse(uerr.URL); perr == nil {
		u.RawQuery = ""
		u.Fragment = ""
		u.User = nil
		redacted = u.String()
	} else if i := strings.IndexAny(redacted, "?#"); i >= 0 {
		redacted = redacted[:i]
	}
	return &url.Error{Op: uerr.Op, URL: redacted, Err: uerr.Err}
}

func (e *RetryingExecutor) recordAttempt(provider string, status int, perr *ProviderError, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	outcome := "success"
	if perr != nil {
		outcome = perr.typeString()
	}
	labels := map[string]string{
		"provider": provider,
		"status":   strconv.Itoa(status),
		"outcome":  outcome,
	}
	e.metrics.RecordCounter("http_attempts_total", 1, labels)
	e.metrics.RecordLatency("http_attempt", elapsed, map[string]string{"provider": provider})
}

func validateRequestURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty URL")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, but got: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("URL must include a host")
	}
	return u, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
