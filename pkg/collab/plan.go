package collab

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/httpclient"
)

// fallbackTrajectory is the deterministic three-step trajectory emitted
// when a planner response fails to parse (§4.10 step 2): rewards sum to
// exactly 1.0 and Fallback is set so callers can track how often the
// planner degraded.
func fallbackTrajectory(species, modelType string) Trajectory {
	return Trajectory{
		Steps: []Step{
			{Action: "observe_environment", Reasoning: "default fallback step", Reward: 0.3},
			{Action: "attempt_objective", Reasoning: "default fallback step", Reward: 0.4},
			{Action: "report_outcome", Reasoning: "default fallback step", Reward: 0.3},
		},
		ExpectedOutcome: "fallback trajectory for " + species + "/" + modelType,
		Metadata:        map[string]any{"species": species, "model_type": modelType},
		Fallback:        true,
	}
}

// planOne requests a single trajectory from the teacher planner and
// parses its response, falling back to the deterministic trajectory on
// any transport or parse failure.
func planOne(ctx context.Context, llm *httpclient.LLMClient, species, modelType string, lctx LoreContext, logger *zap.Logger) Trajectory {
	resp, err := llm.Plan(ctx, httpclient.PlanRequest{
		Species:     species,
		ModelType:   modelType,
		LoreEntries: lctx.LoreEntries,
		Rules:       lctx.RequiredFields,
	})
	if err != nil {
		logger.Warn("collab: plan call failed, using fallback trajectory", zap.Error(err))
		return fallbackTrajectory(species, modelType)
	}

	var traj Trajectory
	if err := json.Unmarshal(resp.Raw, &traj); err != nil {
		logger.Warn("collab: plan response failed to parse, using fallback trajectory", zap.Error(err))
		return fallbackTrajectory(species, modelType)
	}
	if traj.Metadata == nil {
		traj.Metadata = map[string]any{}
	}
	return traj
}

// planBatch generates n trajectories concurrently, bounded by
// maxConcurrent in-flight LLM calls at once — the same reserve-a-slot
// concurrency cap the teacher's SubAgentRunner.Dispatch enforces,
// simplified here to a semaphore since a generation batch has no need
// for the teacher's per-execution cancel/list bookkeeping.
func planBatch(ctx context.Context, llm *httpclient.LLMClient, species, modelType string, lctx LoreContext, n, maxConcurrent int, logger *zap.Logger) []Trajectory {
	sem := make(chan struct{}, maxConcurrent)
	out := make([]Trajectory, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			out[idx] = planOne(ctx, llm, species, modelType, lctx, logger)
		}(i)
	}
	wg.Wait()
	return out
}
