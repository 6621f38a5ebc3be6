package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/breaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*BaseClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	brk := breaker.New(5, time.Minute)
	c := NewBaseClient(srv.URL, 5*time.Second, brk, zap.NewNop())
	// keep test retries fast instead of the real 2/4/8s schedule
	c.client.RetryWaitMin = time.Millisecond
	c.client.RetryWaitMax = 5 * time.Millisecond
	return c, srv
}

func TestDoReturnsBodyOn200(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})

	data, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestDoTreats404AsNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Do(context.Background(), http.MethodGet, "/missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, c.brk.Allow(), "404 must not trip the breaker")
}

func TestDoPropagates4xxWithoutRetry(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Do(context.Background(), http.MethodGet, "/bad", nil)
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, http.StatusBadRequest, clientErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not retry")
	assert.NoError(t, c.brk.Allow(), "4xx must not trip the breaker")
}

func TestDoRetriesOn5xxThenReturnsServerError(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Do(context.Background(), http.MethodGet, "/boom", nil)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "1 initial attempt + 3 retries")
}

func TestDoRejectsWhenBreakerOpen(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c.brk = breaker.New(1, time.Minute)
	c.brk.RecordFailure()

	_, err := c.Do(context.Background(), http.MethodGet, "/x", nil)
	assert.ErrorIs(t, err, breaker.ErrOpen)
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})

	data, err := c.Do(context.Background(), http.MethodGet, "/flaky", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.NoError(t, c.brk.Allow())
}
