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

func validTrajectory() Trajectory {
	return Trajectory{
		Steps: []Step{
			{Action: "scout", Reasoning: "assess the room", Reward: 0.3},
			{Action: "confront", Reasoning: "engage the revenant", Reward: 0.4},
			{Action: "resolve", Reasoning: "close out the encounter", Reward: 0.3},
		},
		ExpectedOutcome: "revenant subdued",
		Metadata:        map[string]any{"species": "revenant"},
	}
}

func newQualityLLM(t *testing.T, body string) *httpclient.LLMClient {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	base := httpclient.NewBaseClient(srv.URL, 5*time.Second, breaker.New(5, time.Minute), zap.NewNop())
	return httpclient.NewLLMClient(base)
}

func TestVerifyStructureValidTrajectory(t *testing.T) {
	score, issues, warnings := verifyStructure(validTrajectory())
	assert.Equal(t, 1.0, score)
	assert.Empty(t, issues)
	assert.Empty(t, warnings)
}

func TestVerifyStructureFlagsTooFewSteps(t *testing.T) {
	traj := validTrajectory()
	traj.Steps = traj.Steps[:1]
	score, issues, _ := verifyStructure(traj)
	assert.Less(t, score, 1.0)
	assert.NotEmpty(t, issues)
}

func TestVerifyStructureWarnsOnMissingReasoning(t *testing.T) {
	traj := validTrajectory()
	traj.Steps[0].Reasoning = ""
	score, _, warnings := verifyStructure(traj)
	assert.Equal(t, 1.0, score, "missing reasoning is a warning, not a score penalty")
	assert.NotEmpty(t, warnings)
}

func TestVerifyStructureWarnsOnRewardSumDrift(t *testing.T) {
	traj := validTrajectory()
	traj.Steps[0].Reward = 0.9
	_, _, warnings := verifyStructure(traj)
	assert.NotEmpty(t, warnings)
}

func TestVerifyRulesComplianceAllPresent(t *testing.T) {
	score, issues := verifyRulesCompliance(validTrajectory(), []string{"species"})
	assert.Equal(t, 1.0, score)
	assert.Empty(t, issues)
}

func TestVerifyRulesComplianceMissingField(t *testing.T) {
	score, issues := verifyRulesCompliance(validTrajectory(), []string{"species", "danger_tier"})
	assert.Equal(t, 0.9, score)
	assert.Len(t, issues, 1)
}

func TestVerifyCombinesMinimumScore(t *testing.T) {
	llm := newQualityLLM(t, `{"score":0.4,"issues":["weak pacing"],"critical_issues":[]}`)
	result := verify(context.Background(), llm, validTrajectory(), []string{"species"}, zap.NewNop())
	assert.Equal(t, 0.4, result.Score)
	assert.Contains(t, result.Issues, "weak pacing")
}

func TestVerifyCarriesCriticalIssuesSeparately(t *testing.T) {
	llm := newQualityLLM(t, `{"score":0.9,"issues":[],"critical_issues":["game-breaking exploit"]}`)
	result := verify(context.Background(), llm, validTrajectory(), []string{"species"}, zap.NewNop())
	assert.Equal(t, 0.9, result.Score)
	assert.Equal(t, []string{"game-breaking exploit"}, result.CriticalIssues)
	assert.False(t, result.Valid(0.7), "a high score must not mask a critical issue")
}

func TestVerificationResultValidRequiresNoCriticalIssues(t *testing.T) {
	result := VerificationResult{Score: 0.95, CriticalIssues: []string{"game-breaking exploit"}}
	assert.False(t, result.Valid(0.7))

	result.CriticalIssues = nil
	assert.True(t, result.Valid(0.7))
}

func TestVerifyDegradesGracefullyOnQualityCallFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	base := httpclient.NewBaseClient(srv.URL, 500*time.Millisecond, breaker.New(5, time.Minute), zap.NewNop())
	llm := httpclient.NewLLMClient(base)

	// A pre-cancelled context short-circuits retryablehttp's backoff
	// loop immediately instead of exercising the full 2/4/8s retry
	// schedule, keeping this failure-path test fast and deterministic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := verify(ctx, llm, validTrajectory(), nil, zap.NewNop())
	assert.Equal(t, 0.5, result.Score)
}
