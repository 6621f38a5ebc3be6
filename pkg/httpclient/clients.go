package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// RulesClient fetches the rule set used to seed a trajectory request
// and to check rules compliance during verification (§4.10).
type RulesClient struct{ base *BaseClient }

func NewRulesClient(base *BaseClient) *RulesClient { return &RulesClient{base: base} }

// Rules is the subset of the rules-engine response the orchestrator
// consumes: the fields a trajectory's metadata must carry.
type Rules struct {
	RequiredFields []string       `json:"required_fields"`
	Raw            map[string]any `json:"-"`
}

// FetchRules retrieves rules for a species/model_type pair. A 404 or
// any outbound failure yields an empty Rules — the caller's pipeline
// continues with an empty slot (§4.10 step 1).
func (c *RulesClient) FetchRules(ctx context.Context, species, modelType string) (Rules, error) {
	path := "/rules?species=" + species + "&model_type=" + modelType
	data, err := c.base.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Rules{}, nil
		}
		return Rules{}, err
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// LoreClient fetches lore/example entries used to build a trajectory's
// lore_context (§4.10 step 1).
type LoreClient struct{ base *BaseClient }

func NewLoreClient(base *BaseClient) *LoreClient { return &LoreClient{base: base} }

// LoreEntries is the lore-service response: free-form lore/example text
// entries relevant to a species.
type LoreEntries struct {
	Entries []string `json:"entries"`
}

// FetchLore retrieves lore entries for a species. A 404 or any outbound
// failure yields empty entries — the pipeline continues (§4.10 step 1).
func (c *LoreClient) FetchLore(ctx context.Context, species string) (LoreEntries, error) {
	data, err := c.base.Do(ctx, http.MethodGet, "/lore?species="+species, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoreEntries{}, nil
		}
		return LoreEntries{}, err
	}

	var lore LoreEntries
	if err := json.Unmarshal(data, &lore); err != nil {
		return LoreEntries{}, err
	}
	return lore, nil
}

// LLMClient issues the two kinds of outbound model calls the
// orchestrator needs: trajectory planning and quality verification
// (§4.10 steps 2 and 3).
type LLMClient struct{ base *BaseClient }

func NewLLMClient(base *BaseClient) *LLMClient { return &LLMClient{base: base} }

// PlanRequest is the teacher-planner prompt payload.
type PlanRequest struct {
	Species     string   `json:"species"`
	ModelType   string   `json:"model_type"`
	LoreEntries []string `json:"lore_entries"`
	Rules       []string `json:"rules"`
}

// PlanResponse is the raw planner output; parsing into a trajectory is
// the caller's responsibility so a parse failure can be handled with
// the deterministic fallback trajectory (§4.10 step 2).
type PlanResponse struct {
	Raw json.RawMessage `json:"trajectory"`
}

// Plan requests one trajectory from the teacher planner.
func (c *LLMClient) Plan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	data, err := c.base.Do(ctx, http.MethodPost, "/plan", req)
	if err != nil {
		return PlanResponse{}, err
	}

	var resp PlanResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return PlanResponse{}, err
	}
	return resp, nil
}

// QualityRequest asks the LLM to judge a generated trajectory.
type QualityRequest struct {
	Trajectory json.RawMessage `json:"trajectory"`
}

// QualityResponse is the LLM-based quality check result folded into
// the combined verification score (§4.10 step 3).
type QualityResponse struct {
	Score          float64  `json:"score"`
	Issues         []string `json:"issues"`
	CriticalIssues []string `json:"critical_issues"`
}

// Quality requests the LLM-based quality check for a trajectory.
func (c *LLMClient) Quality(ctx context.Context, req QualityRequest) (QualityResponse, error) {
	data, err := c.base.Do(ctx, http.MethodPost, "/verify", req)
	if err != nil {
		return QualityResponse{}, err
	}

	var resp QualityResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return QualityResponse{}, err
	}
	return resp, nil
}
