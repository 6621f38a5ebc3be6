// Package httpclient is the shared resilient outbound transport (§4.11):
// one retrying, circuit-breaker-guarded base client per outbound
// dependency, with thin service-specific wrappers layered on top.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/breaker"
	"github.com/bodybroker/core/pkg/version"
)

// ErrNotFound is returned by Do for a 404 response, which §4.11 treats
// as a successful "not found" rather than a failure.
var ErrNotFound = fmt.Errorf("httpclient: not found")

// ClientError wraps a non-retryable 4xx response. It does not trip the
// breaker (§4.11: "4xx ... is not a service failure").
type ClientError struct {
	StatusCode int
	Body       []byte
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("httpclient: client error %d", e.StatusCode)
}

// ServerError wraps a 5xx response surviving all retries.
type ServerError struct {
	StatusCode int
	Body       []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("httpclient: server error %d", e.StatusCode)
}

// BaseClient is the shared base for rules/lore/LLM outbound calls: one
// connection pool, one breaker, retry with exponential backoff.
type BaseClient struct {
	baseURL string
	client  *retryablehttp.Client
	brk     *breaker.Breaker
	logger  *zap.Logger
}

// NewBaseClient builds a BaseClient bound to baseURL with the given
// per-request timeout and breaker (one breaker per client instance,
// per §4.11/§5).
func NewBaseClient(baseURL string, timeout time.Duration, brk *breaker.Breaker, logger *zap.Logger) *BaseClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 2 * time.Second
	rc.RetryWaitMax = 8 * time.Second
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.CheckRetry = retryPolicy
	// hand the last response back once retries run out, so Do can map a
	// surviving 5xx to *ServerError
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = timeout
	rc.Logger = nil // the zap logger below supersedes retryablehttp's own

	return &BaseClient{
		baseURL: baseURL,
		client:  rc,
		brk:     brk,
		logger:  logger,
	}
}

// Close recreates the underlying connection pool, matching the
// "recreated on close" session-reuse contract of §4.11.
func (c *BaseClient) Close() {
	c.client.HTTPClient.CloseIdleConnections()
}

// retryPolicy retries on 5xx, transport error, or timeout; 4xx and 2xx
// responses stop retrying immediately.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp == nil {
		return true, nil
	}
	if resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// Do issues a JSON request and returns the decoded response body.
// The breaker is checked before any attempt and updated once from the
// final outcome: success or 4xx resets it, a surviving 5xx or
// transport error counts as a failure. ErrNotFound is returned (not a
// ClientError) for a 404, per §4.11.
func (c *BaseClient) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.brk.Allow(); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.client.Do(req)
	if err != nil {
		c.brk.RecordFailure()
		c.logger.Warn("httpclient: request failed", zap.String("url", c.baseURL+path), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.brk.RecordFailure()
		return nil, fmt.Errorf("httpclient: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.brk.RecordSuccess()
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		c.brk.RecordFailure()
		return nil, &ServerError{StatusCode: resp.StatusCode, Body: data}
	case resp.StatusCode >= 400:
		c.brk.RecordSuccess()
		return nil, &ClientError{StatusCode: resp.StatusCode, Body: data}
	default:
		c.brk.RecordSuccess()
		return data, nil
	}
}
