package collab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/breaker"
	"github.com/bodybroker/core/pkg/httpclient"
)

func TestRetrieveCombinesRulesAndLore(t *testing.T) {
	rulesSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"required_fields":["species"]}`))
	}))
	defer rulesSrv.Close()
	loreSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entries":["the broker keeps no promises"]}`))
	}))
	defer loreSrv.Close()

	rulesClient := httpclient.NewRulesClient(httpclient.NewBaseClient(rulesSrv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop()))
	loreClient := httpclient.NewLoreClient(httpclient.NewBaseClient(loreSrv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop()))

	lctx := retrieve(context.Background(), rulesClient, loreClient, "revenant", "teacher", zap.NewNop())
	assert.Equal(t, []string{"species"}, lctx.RequiredFields)
	assert.Equal(t, []string{"the broker keeps no promises"}, lctx.LoreEntries)
}

func TestRetrieveToleratesRulesFailure(t *testing.T) {
	rulesSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer rulesSrv.Close()
	loreSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entries":["lore entry"]}`))
	}))
	defer loreSrv.Close()

	rulesClient := httpclient.NewRulesClient(httpclient.NewBaseClient(rulesSrv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop()))
	loreClient := httpclient.NewLoreClient(httpclient.NewBaseClient(loreSrv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop()))

	lctx := retrieve(context.Background(), rulesClient, loreClient, "revenant", "teacher", zap.NewNop())
	assert.Empty(t, lctx.RequiredFields)
	assert.Equal(t, []string{"lore entry"}, lctx.LoreEntries)
}
