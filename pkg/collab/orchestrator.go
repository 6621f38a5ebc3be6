package collab

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/httpclient"
	"github.com/bodybroker/core/pkg/metrics"
)

// Orchestrator runs the retrieve → plan → verify → regenerate pipeline
// (§4.10) against the shared rules/lore/LLM HTTP clients.
type Orchestrator struct {
	rules *httpclient.RulesClient
	lore  *httpclient.LoreClient
	llm   *httpclient.LLMClient

	maxConcurrent           int
	maxRegenerationAttempts int
	verifyMinScore          float64

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewOrchestrator builds an Orchestrator. m may be nil, in which case
// generated-trajectory and regeneration-attempt counts simply aren't
// recorded.
func NewOrchestrator(rules *httpclient.RulesClient, lore *httpclient.LoreClient, llm *httpclient.LLMClient, maxConcurrent, maxRegenerationAttempts int, verifyMinScore float64, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		rules:                   rules,
		lore:                    lore,
		llm:                     llm,
		maxConcurrent:           maxConcurrent,
		maxRegenerationAttempts: maxRegenerationAttempts,
		verifyMinScore:          verifyMinScore,
		metrics:                 m,
		logger:                  logger,
	}
}

type verifiedTrajectory struct {
	trajectory Trajectory
	result     VerificationResult
}

// GenerateTrainingExamples is generate_training_examples(species,
// model_type, n, rules?) (§4.10): retrieve lore/rules context, plan n
// trajectories, verify all of them concurrently, then regenerate
// shortfalls up to maxRegenerationAttempts rounds.
func (o *Orchestrator) GenerateTrainingExamples(ctx context.Context, species, modelType string, n int, requiredFieldsOverride []string) GenerateResult {
	lctx := retrieve(ctx, o.rules, o.lore, species, modelType, o.logger)
	requiredFields := lctx.RequiredFields
	if len(requiredFieldsOverride) > 0 {
		requiredFields = requiredFieldsOverride
	}

	planned := planBatch(ctx, o.llm, species, modelType, lctx, n, o.maxConcurrent, o.logger)
	verified := o.verifyBatch(ctx, planned, requiredFields)

	valid, invalid := partition(verified, o.verifyMinScore)

	attempts := 0
	for len(valid) < n && attempts < o.maxRegenerationAttempts {
		attempts++
		shortfall := n - len(valid)
		regenCount := shortfall * 2

		regenerated := planBatch(ctx, o.llm, species, modelType, lctx, regenCount, o.maxConcurrent, o.logger)
		regenVerified := o.verifyBatch(ctx, regenerated, requiredFields)
		regenValid, regenInvalid := partition(regenVerified, o.verifyMinScore)

		valid = append(valid, regenValid...)
		invalid = append(invalid, regenInvalid...)

		o.logger.Info("collab: regeneration round completed",
			zap.Int("attempt", attempts), zap.Int("shortfall", shortfall),
			zap.Int("regen_valid", len(regenValid)), zap.Int("regen_invalid", len(regenInvalid)))
	}

	trajectories := make([]Trajectory, 0, len(valid)+len(invalid))
	for _, v := range valid {
		trajectories = append(trajectories, v.trajectory)
	}
	for _, v := range invalid {
		trajectories = append(trajectories, v.trajectory)
	}

	if o.metrics != nil {
		o.metrics.TrajectoriesGeneratedTotal.WithLabelValues("valid").Add(float64(len(valid)))
		o.metrics.TrajectoriesGeneratedTotal.WithLabelValues("invalid").Add(float64(len(invalid)))
		o.metrics.RegenerationAttempts.Observe(float64(attempts))
	}

	return GenerateResult{
		Trajectories:   trajectories,
		ValidatedCount: len(valid),
		InvalidCount:   len(invalid),
		Metadata: map[string]any{
			"species":                species,
			"model_type":             modelType,
			"lore_context_present":   len(lctx.LoreEntries) > 0,
			"regeneration_attempts":  attempts,
			"lore_entry_count":       len(lctx.LoreEntries),
			"rules_used_count":       len(requiredFields),
		},
	}
}

// verifyBatch runs verify concurrently over trajectories, bounded the
// same way plan is (§4.10 step 3: "verify all trajectories
// concurrently").
func (o *Orchestrator) verifyBatch(ctx context.Context, trajectories []Trajectory, requiredFields []string) []verifiedTrajectory {
	sem := make(chan struct{}, o.maxConcurrent)
	out := make([]verifiedTrajectory, len(trajectories))
	var wg sync.WaitGroup

	for i, t := range trajectories {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, traj Trajectory) {
			defer wg.Done()
			defer func() { <-sem }()
			out[idx] = verifiedTrajectory{trajectory: traj, result: verify(ctx, o.llm, traj, requiredFields, o.logger)}
		}(i, t)
	}
	wg.Wait()
	return out
}

func partition(verified []verifiedTrajectory, minScore float64) (valid, invalid []verifiedTrajectory) {
	for _, v := range verified {
		if v.result.Valid(minScore) {
			valid = append(valid, v)
		} else {
			invalid = append(invalid, v)
		}
	}
	return valid, invalid
}
