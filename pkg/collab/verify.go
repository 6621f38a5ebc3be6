package collab

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/httpclient"
)

// verifyStructure checks §4.10 step 3's structural rules. Hard
// violations (step count out of range, a step missing its action, a
// reward outside [0,1], or an empty expected_outcome) each cost 0.25 off
// a starting score of 1.0; missing reasoning and a reward sum drifted
// more than 0.2 from 1.0 are warnings only and do not affect the score.
func verifyStructure(t Trajectory) (score float64, issues, warnings []string) {
	score = 1.0

	if len(t.Steps) < 3 || len(t.Steps) > 20 {
		issues = append(issues, "step count out of range [3,20]")
		score -= 0.25
	}

	var rewardSum float64
	for _, s := range t.Steps {
		if s.Action == "" {
			issues = append(issues, "step has empty action")
			score -= 0.25
		}
		if s.Reasoning == "" {
			warnings = append(warnings, "step missing reasoning")
		}
		if s.Reward < 0 || s.Reward > 1 {
			issues = append(issues, "step reward out of range [0,1]")
			score -= 0.25
		}
		rewardSum += s.Reward
	}

	if math.Abs(rewardSum-1.0) > 0.2 {
		warnings = append(warnings, "reward sum drifted more than 0.2 from 1.0")
	}

	if t.ExpectedOutcome == "" {
		issues = append(issues, "expected_outcome is empty")
		score -= 0.25
	}

	if score < 0 {
		score = 0
	}
	return score, issues, warnings
}

// verifyRulesCompliance checks each required field's presence on the
// trajectory's metadata; a missing field costs 0.1 off a starting score
// of 1.0 (§4.10 step 3).
func verifyRulesCompliance(t Trajectory, requiredFields []string) (score float64, issues []string) {
	score = 1.0
	for _, field := range requiredFields {
		if _, ok := t.Metadata[field]; !ok {
			issues = append(issues, "missing required field: "+field)
			score -= 0.1
		}
	}
	if score < 0 {
		score = 0
	}
	return score, issues
}

// verifyQuality issues the single outbound LLM quality check (§4.10
// step 3). A transport failure degrades gracefully to a neutral score
// rather than failing the whole verification pass, consistent with the
// retrieve stage's "sub-fetch failure yields an empty slot" posture.
// critical issues are kept separate from ordinary issues: per spec.md's
// verification invariant, any critical issue fails a trajectory
// regardless of score.
func verifyQuality(ctx context.Context, llm *httpclient.LLMClient, t Trajectory, logger *zap.Logger) (score float64, issues, criticalIssues []string) {
	raw, err := json.Marshal(t)
	if err != nil {
		logger.Warn("collab: trajectory marshal for quality check failed", zap.Error(err))
		return 0.5, []string{"quality check skipped: marshal error"}, nil
	}
	resp, err := llm.Quality(ctx, httpclient.QualityRequest{Trajectory: raw})
	if err != nil {
		logger.Warn("collab: quality check call failed", zap.Error(err))
		return 0.5, []string{"quality check skipped: " + err.Error()}, nil
	}
	return resp.Score, resp.Issues, resp.CriticalIssues
}

// verify combines the three checks into one VerificationResult: the
// minimum of the three scores, the union of their issues, and any
// critical issues carried through untouched (§4.10 step 3).
func verify(ctx context.Context, llm *httpclient.LLMClient, t Trajectory, requiredFields []string, logger *zap.Logger) VerificationResult {
	structScore, structIssues, warnings := verifyStructure(t)
	rulesScore, rulesIssues := verifyRulesCompliance(t, requiredFields)
	qualityScore, qualityIssues, criticalIssues := verifyQuality(ctx, llm, t, logger)

	score := math.Min(structScore, math.Min(rulesScore, qualityScore))

	issueSet := make(map[string]struct{})
	var issues []string
	for _, group := range [][]string{structIssues, rulesIssues, qualityIssues} {
		for _, iss := range group {
			if _, seen := issueSet[iss]; seen {
				continue
			}
			issueSet[iss] = struct{}{}
			issues = append(issues, iss)
		}
	}
	sort.Strings(issues)
	sort.Strings(criticalIssues)

	return VerificationResult{Score: score, Issues: issues, CriticalIssues: criticalIssues, Warnings: warnings}
}
