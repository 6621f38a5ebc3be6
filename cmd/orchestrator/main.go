// Command orchestrator runs the SRL→RLVR Training Orchestrator: the
// retrieve → plan → verify → regenerate collaboration pipeline behind
// a bus request/reply endpoint, wired onto the shared bus/database
// runtime (§4.10-§4.11).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bodybroker/core/pkg/bus"
	"github.com/bodybroker/core/pkg/breaker"
	"github.com/bodybroker/core/pkg/collab"
	"github.com/bodybroker/core/pkg/config"
	"github.com/bodybroker/core/pkg/database"
	"github.com/bodybroker/core/pkg/health"
	"github.com/bodybroker/core/pkg/httpclient"
	"github.com/bodybroker/core/pkg/logging"
	"github.com/bodybroker/core/pkg/metrics"
	"github.com/bodybroker/core/pkg/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	logger, err := logging.New("orchestrator")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.LoadOrchestratorConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The repository pool is opened for parity with the other two
	// services' "single pool per service" contract (§5) and for the
	// health checker's connectivity probe; the collaboration pipeline
	// itself is stateless per call and persists nothing of its own.
	db, err := database.NewClient(ctx, database.Config{URL: cfg.Repo.URL, MinConns: cfg.Repo.MinConns, MaxConns: cfg.Repo.MaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	messageBus, err := bus.Connect(cfg.Bus.URL, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("connect bus: %w", err)
	}

	m := metrics.New()

	rulesBase := httpclient.NewBaseClient(cfg.RulesURL, cfg.ControlPlaneTimeout, breaker.New(cfg.Breaker.Threshold, cfg.Breaker.Timeout()), logger)
	loreBase := httpclient.NewBaseClient(cfg.LoreURL, cfg.ControlPlaneTimeout, breaker.New(cfg.Breaker.Threshold, cfg.Breaker.Timeout()), logger)
	llmBase := httpclient.NewBaseClient(cfg.LLMURL, cfg.LLMTimeout, breaker.New(cfg.Breaker.Threshold, cfg.Breaker.Timeout()), logger)

	orchestrator := collab.NewOrchestrator(
		httpclient.NewRulesClient(rulesBase),
		httpclient.NewLoreClient(loreBase),
		httpclient.NewLLMClient(llmBase),
		cfg.MaxConcurrentPlans,
		cfg.MaxRegenerationAttempts,
		cfg.VerifyMinScore,
		m,
		logger,
	)

	svc := runtime.New("orchestrator", logger, messageBus, db, m, ":9092", cfg.GracePeriod)

	if err := svc.SubscribeReply(bus.OrchestratorGenerateTrainingExamples, generateTrainingExamplesHandler(orchestrator)); err != nil {
		return fmt.Errorf("subscribe generate training examples: %w", err)
	}

	checker := func(checkCtx context.Context) health.Record {
		issues := []string(nil)
		status := health.StatusHealthy
		if err := db.Pool().Ping(checkCtx); err != nil {
			status = health.StatusUnhealthy
			issues = append(issues, "database unreachable: "+err.Error())
		}
		return health.Record{Service: "orchestrator", Status: status, Issues: issues}
	}
	publisher := health.NewPublisher(messageBus, checker, bus.OrchestratorHealth, "", logger)
	publisherCtx, cancelPublisher := context.WithCancel(ctx)
	go publisher.Run(publisherCtx)
	svc.Register("health-publisher", cancelPublisher)

	logger.Info("orchestrator service starting")
	return svc.Run(ctx)
}

type generateTrainingExamplesRequest struct {
	Species   string   `json:"species"`
	ModelType string   `json:"model_type"`
	N         int      `json:"n"`
	Rules     []string `json:"rules,omitempty"`
}

// generateTrainingExamplesHandler answers
// orchestrator.generate.training_examples, the request/reply wrapper
// around generate_training_examples(species, model_type, n, rules?)
// (§4.10), following the same decode/encode-only shape as
// story.QueryServer's handlers.
func generateTrainingExamplesHandler(o *collab.Orchestrator) bus.ReplyHandler {
	return func(ctx context.Context, subject string, data []byte) []byte {
		var req generateTrainingExamplesRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
		}

		result := o.GenerateTrainingExamples(ctx, req.Species, req.ModelType, req.N, req.Rules)
		reply := map[string]any{
			"success": true,
			"result":  result,
		}
		raw, err := json.Marshal(reply)
		if err != nil {
			return []byte(`{"success":false,"error":"marshal reply failed"}`)
		}
		return raw
	}
}
