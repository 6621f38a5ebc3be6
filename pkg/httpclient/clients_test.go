package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/breaker"
)

func TestRulesClientFetchRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"required_fields":["species","danger_tier"]}`))
	}))
	defer srv.Close()

	base := NewBaseClient(srv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop())
	rules, err := NewRulesClient(base).FetchRules(context.Background(), "revenant", "teacher")
	require.NoError(t, err)
	assert.Equal(t, []string{"species", "danger_tier"}, rules.RequiredFields)
}

func TestRulesClientMissingRulesYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	base := NewBaseClient(srv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop())
	rules, err := NewRulesClient(base).FetchRules(context.Background(), "revenant", "teacher")
	require.NoError(t, err)
	assert.Empty(t, rules.RequiredFields)
}

func TestLoreClientFetchLore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"entries":["the broker keeps no promises"]}`))
	}))
	defer srv.Close()

	base := NewBaseClient(srv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop())
	lore, err := NewLoreClient(base).FetchLore(context.Background(), "revenant")
	require.NoError(t, err)
	assert.Equal(t, []string{"the broker keeps no promises"}, lore.Entries)
}

func TestLLMClientQuality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"score":0.9,"issues":["minor pacing"],"critical_issues":[]}`))
	}))
	defer srv.Close()

	base := NewBaseClient(srv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop())
	resp, err := NewLLMClient(base).Quality(context.Background(), QualityRequest{Trajectory: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 0.9, resp.Score)
	assert.Equal(t, []string{"minor pacing"}, resp.Issues)
}
