package config

import "time"

// OrchestratorConfig is the typed configuration for the SRL→RLVR Training
// Orchestrator (§4.10): bus, repository, breaker, and the HTTP endpoints
// for rules/lore/LLM calls that back retrieve/plan/verify.
type OrchestratorConfig struct {
	Bus     BusConfig
	Repo    RepoConfig
	Breaker BreakerConfig

	GracePeriod time.Duration

	RulesURL string
	LoreURL  string
	LLMURL   string

	// ControlPlaneTimeout is the default outbound call timeout for
	// rules/lore requests; LLMTimeout covers the longer model call
	// (§5: "default 5s for control plane, up to 60s for LLM calls").
	ControlPlaneTimeout time.Duration
	LLMTimeout          time.Duration

	// MaxConcurrentPlans bounds how many trajectories are planned and
	// verified at once (§4.10's bounded-concurrency dispatch).
	MaxConcurrentPlans int

	// MaxRegenerationAttempts bounds the verify-fail regenerate loop
	// (§4.10) so a persistently failing trajectory terminates instead
	// of looping forever.
	MaxRegenerationAttempts int

	// VerifyMinScore is the minimum combined verification score a
	// trajectory must reach to be accepted without regeneration.
	VerifyMinScore float64
}

// LoadOrchestratorConfig loads OrchestratorConfig from the environment.
func LoadOrchestratorConfig() (*OrchestratorConfig, error) {
	bus, err := loadBusConfig()
	if err != nil {
		return nil, err
	}
	repo, err := loadRepoConfig()
	if err != nil {
		return nil, err
	}
	breaker, err := loadBreakerConfig()
	if err != nil {
		return nil, err
	}
	grace, err := loadGracePeriod()
	if err != nil {
		return nil, err
	}
	rulesURL, err := requireEnv("RULES_URL")
	if err != nil {
		return nil, err
	}
	loreURL, err := requireEnv("LORE_URL")
	if err != nil {
		return nil, err
	}
	llmURL, err := requireEnv("LLM_URL")
	if err != nil {
		return nil, err
	}
	maxConcurrent, err := getEnvInt("MAX_CONCURRENT_PLANS", 4)
	if err != nil {
		return nil, err
	}
	maxRegen, err := getEnvInt("MAX_REGENERATION_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	minScore, err := getEnvFloat("VERIFY_MIN_SCORE", 0.7)
	if err != nil {
		return nil, err
	}

	cfg := &OrchestratorConfig{
		Bus:                     bus,
		Repo:                    repo,
		Breaker:                 breaker,
		GracePeriod:             grace,
		RulesURL:                rulesURL,
		LoreURL:                 loreURL,
		LLMURL:                  llmURL,
		ControlPlaneTimeout:     5 * time.Second,
		LLMTimeout:              60 * time.Second,
		MaxConcurrentPlans:      maxConcurrent,
		MaxRegenerationAttempts: maxRegen,
		VerifyMinScore:          minScore,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *OrchestratorConfig) Validate() error {
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	if err := c.Repo.Validate(); err != nil {
		return err
	}
	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	if c.GracePeriod <= 0 {
		return NewValidationError("orchestrator", "GRACE_PERIOD_SECONDS", ErrInvalidValue)
	}
	if c.RulesURL == "" {
		return NewValidationError("orchestrator", "RULES_URL", ErrMissingRequiredField)
	}
	if c.LoreURL == "" {
		return NewValidationError("orchestrator", "LORE_URL", ErrMissingRequiredField)
	}
	if c.LLMURL == "" {
		return NewValidationError("orchestrator", "LLM_URL", ErrMissingRequiredField)
	}
	if c.MaxConcurrentPlans < 1 {
		return NewValidationError("orchestrator", "MAX_CONCURRENT_PLANS", ErrInvalidValue)
	}
	if c.MaxRegenerationAttempts < 0 {
		return NewValidationError("orchestrator", "MAX_REGENERATION_ATTEMPTS", ErrInvalidValue)
	}
	if c.VerifyMinScore < 0 || c.VerifyMinScore > 1 {
		return NewValidationError("orchestrator", "VERIFY_MIN_SCORE", ErrInvalidValue)
	}
	return nil
}
