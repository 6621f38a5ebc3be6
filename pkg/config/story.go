package config

import "time"

// DriftConfig holds the drift-detection thresholds from §4.5, all
// fractions of a window's total weight/time.
type DriftConfig struct {
	// Tangential is the minimum off-allocation fraction that triggers a
	// "tangential" drift finding.
	Tangential float64
	// OffTheme is the minimum off-theme-activity fraction that triggers
	// an "off_theme" drift finding.
	OffTheme float64
	// ThemeMin is the minimum theme-consistency score below which a
	// window is flagged even absent a specific off-theme activity match.
	ThemeMin float64
}

func loadDriftConfig() (DriftConfig, error) {
	tangential, err := getEnvFloat("DRIFT_TANGENTIAL", 0.30)
	if err != nil {
		return DriftConfig{}, err
	}
	offTheme, err := getEnvFloat("DRIFT_OFF_THEME", 0.25)
	if err != nil {
		return DriftConfig{}, err
	}
	themeMin, err := getEnvFloat("DRIFT_THEME_MIN", 0.70)
	if err != nil {
		return DriftConfig{}, err
	}
	return DriftConfig{Tangential: tangential, OffTheme: offTheme, ThemeMin: themeMin}, nil
}

func (c DriftConfig) Validate() error {
	for name, v := range map[string]float64{
		"DRIFT_TANGENTIAL": c.Tangential,
		"DRIFT_OFF_THEME":  c.OffTheme,
		"DRIFT_THEME_MIN":  c.ThemeMin,
	} {
		if v < 0 || v > 1 {
			return NewValidationError("drift", name, ErrInvalidValue)
		}
	}
	return nil
}

// StoryConfig is the typed configuration for the Story Memory service
// (§4.1-§4.5): bus, repository, snapshot cache, and drift thresholds.
type StoryConfig struct {
	Bus          BusConfig
	Repo         RepoConfig
	Cache        CacheConfig
	Drift        DriftConfig
	GracePeriod  time.Duration
	DriftSuppress time.Duration
}

// LoadStoryConfig loads StoryConfig from the environment, per §6.
func LoadStoryConfig() (*StoryConfig, error) {
	bus, err := loadBusConfig()
	if err != nil {
		return nil, err
	}
	repo, err := loadRepoConfig()
	if err != nil {
		return nil, err
	}
	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}
	drift, err := loadDriftConfig()
	if err != nil {
		return nil, err
	}
	grace, err := loadGracePeriod()
	if err != nil {
		return nil, err
	}

	cfg := &StoryConfig{
		Bus:           bus,
		Repo:          repo,
		Cache:         cache,
		Drift:         drift,
		GracePeriod:   grace,
		DriftSuppress: 30 * time.Minute,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *StoryConfig) Validate() error {
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	if err := c.Repo.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Drift.Validate(); err != nil {
		return err
	}
	if c.GracePeriod <= 0 {
		return NewValidationError("story", "GRACE_PERIOD_SECONDS", ErrInvalidValue)
	}
	return nil
}
