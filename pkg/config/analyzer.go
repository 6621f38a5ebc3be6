package config

import "time"

// AnalyzerConfig is the typed configuration for the 4D Vision Analyzer
// service (§4.6-§4.9): bus, repository, cache, worker pool, and breaker.
type AnalyzerConfig struct {
	Bus     BusConfig
	Repo    RepoConfig
	Cache   CacheConfig
	Breaker BreakerConfig

	// WorkerCount is the number of worker goroutines leasing rows from
	// the analysis queue, per §6 WORKER_COUNT.
	WorkerCount int

	GracePeriod time.Duration

	// PollInterval, HeartbeatInterval, OrphanThreshold are not named in
	// §6 but are required to drive the worker pool adapted from the
	// teacher's queue.Worker; defaults mirror the teacher's own queue
	// defaults since the spec leaves this to the implementer (§5: "an
	// explicit lease timeout sweeper" is optional).
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	OrphanThreshold   time.Duration

	// DegradedQueueDepth is the pending-row count above which the
	// analyzer reports itself degraded (§5 backpressure).
	DegradedQueueDepth int
}

// LoadAnalyzerConfig loads AnalyzerConfig from the environment, per §6.
func LoadAnalyzerConfig() (*AnalyzerConfig, error) {
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
	breaker, err := loadBreakerConfig()
	if err != nil {
		return nil, err
	}
	workerCount, err := getEnvInt("WORKER_COUNT", 3)
	if err != nil {
		return nil, err
	}
	grace, err := loadGracePeriod()
	if err != nil {
		return nil, err
	}

	cfg := &AnalyzerConfig{
		Bus:                bus,
		Repo:               repo,
		Cache:              cache,
		Breaker:            breaker,
		WorkerCount:        workerCount,
		GracePeriod:        grace,
		PollInterval:       1 * time.Second,
		HeartbeatInterval:  10 * time.Second,
		OrphanThreshold:    5 * time.Minute,
		DegradedQueueDepth: 100,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AnalyzerConfig) Validate() error {
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	if err := c.Repo.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	if c.WorkerCount < 1 {
		return NewValidationError("analyzer", "WORKER_COUNT", ErrInvalidValue)
	}
	if c.GracePeriod <= 0 {
		return NewValidationError("analyzer", "GRACE_PERIOD_SECONDS", ErrInvalidValue)
	}
	if c.HeartbeatInterval >= c.OrphanThreshold {
		return NewValidationError("analyzer", "HeartbeatInterval", ErrInvalidValue)
	}
	return nil
}
