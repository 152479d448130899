package llm

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// capturedRequest records what a provider sent to the fake endpoint.
type capturedRequest struct {
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// fakeEndpoint serves one canned reply and records every request.
func fakeEndpoint(t *testing.T, status int, reply string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = append(captured, capturedRequest{
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

// fastExecutor retries with millisecond backoff.
func fastExecutor() *RetryingExecutor {
	return NewRetryingExecutor(RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}
