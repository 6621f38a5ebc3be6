// Package collab implements the SRL→RLVR Training Orchestrator's
// collaboration pipeline: retrieve → plan → verify → regenerate over a
// batch of trajectories (§4.10).
package collab

// Step is one action/reasoning/reward entry in a trajectory (§3).
type Step struct {
	Action    string  `json:"action"`
	Reasoning string  `json:"reasoning"`
	Reward    float64 `json:"reward"`
}

// Trajectory is one generated training example (§3, §4.10).
type Trajectory struct {
	Steps           []Step         `json:"steps"`
	ExpectedOutcome string         `json:"expected_outcome"`
	Metadata        map[string]any `json:"metadata"`
	Fallback        bool           `json:"fallback,omitempty"`
}

// LoreContext bundles the rules and lore/example content retrieved for
// one generation request (§4.10 step 1).
type LoreContext struct {
	RequiredFields []string
	LoreEntries    []string
}

// VerificationResult is the combined output of the three verification
// checks (§4.10 step 3): score is the minimum of the three component
// scores, issues is their union, criticalIssues carries the LLM quality
// check's critical findings separately (these fail a trajectory
// regardless of score), and warnings carries non-fatal notes (reasoning
// missing, reward sum drifted) that don't reduce the score.
type VerificationResult struct {
	Score          float64  `json:"score"`
	Issues         []string `json:"issues"`
	CriticalIssues []string `json:"critical_issues,omitempty"`
	Warnings       []string `json:"warnings"`
}

// Valid reports whether a trajectory cleared verification: the score
// meets minScore and there are zero critical issues.
func (v VerificationResult) Valid(minScore float64) bool {
	return v.Score >= minScore && len(v.CriticalIssues) == 0
}

// GenerateResult is generate_training_examples's return value (§4.10).
type GenerateResult struct {
	Trajectories   []Trajectory   `json:"trajectories"`
	ValidatedCount int            `json:"validated_count"`
	InvalidCount   int            `json:"invalid_count"`
	Metadata       map[string]any `json:"metadata"`
}
