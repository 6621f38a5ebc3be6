package config

import "time"

// BusConfig is the connection config for the shared message bus client,
// one per service per §5 "shared resources".
type BusConfig struct {
	URL string
}

func loadBusConfig() (BusConfig, error) {
	url, err := requireEnv("BUS_URL")
	if err != nil {
		return BusConfig{}, err
	}
	return BusConfig{URL: url}, nil
}

func (c BusConfig) Validate() error {
	if c.URL == "" {
		return NewValidationError("bus", "BUS_URL", ErrMissingRequiredField)
	}
	return nil
}

// RepoConfig is the connection config for the single repository pool per
// service (§5: "single pool per service, min 5, max 20").
type RepoConfig struct {
	URL      string
	MinConns int
	MaxConns int
}

func loadRepoConfig() (RepoConfig, error) {
	url, err := requireEnv("REPO_URL")
	if err != nil {
		return RepoConfig{}, err
	}
	return RepoConfig{URL: url, MinConns: 5, MaxConns: 20}, nil
}

func (c RepoConfig) Validate() error {
	if c.URL == "" {
		return NewValidationError("repo", "REPO_URL", ErrMissingRequiredField)
	}
	if c.MinConns < 1 {
		return NewValidationError("repo", "MinConns", ErrInvalidValue)
	}
	if c.MaxConns < c.MinConns {
		return NewValidationError("repo", "MaxConns", ErrInvalidValue)
	}
	return nil
}

// CacheConfig configures the two-tier snapshot cache (§4.3): an in-process
// bounded LRU (L1) backed by an external store (L2).
type CacheConfig struct {
	L2URL      string
	TTLSeconds int
	L1Max      int
}

func loadCacheConfig() (CacheConfig, error) {
	l2URL, err := requireEnv("CACHE_L2_URL")
	if err != nil {
		return CacheConfig{}, err
	}
	ttl, err := getEnvInt("CACHE_TTL_SECONDS", 3600)
	if err != nil {
		return CacheConfig{}, err
	}
	l1Max, err := getEnvInt("CACHE_L1_MAX", 10000)
	if err != nil {
		return CacheConfig{}, err
	}
	return CacheConfig{L2URL: l2URL, TTLSeconds: ttl, L1Max: l1Max}, nil
}

// TTL returns the configured cache entry lifetime as a time.Duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c CacheConfig) Validate() error {
	if c.L2URL == "" {
		return NewValidationError("cache", "CACHE_L2_URL", ErrMissingRequiredField)
	}
	if c.TTLSeconds <= 0 {
		return NewValidationError("cache", "CACHE_TTL_SECONDS", ErrInvalidValue)
	}
	if c.L1Max <= 0 {
		return NewValidationError("cache", "CACHE_L1_MAX", ErrInvalidValue)
	}
	return nil
}

// BreakerConfig configures a circuit breaker instance (§4.11, §7, §8).
type BreakerConfig struct {
	Threshold      int
	TimeoutSeconds int
}

func loadBreakerConfig() (BreakerConfig, error) {
	threshold, err := getEnvInt("BREAKER_THRESHOLD", 5)
	if err != nil {
		return BreakerConfig{}, err
	}
	timeoutSec, err := getEnvInt("BREAKER_TIMEOUT_SEC", 60)
	if err != nil {
		return BreakerConfig{}, err
	}
	return BreakerConfig{Threshold: threshold, TimeoutSeconds: timeoutSec}, nil
}

// Timeout returns the open-state duration before a half-open probe is
// allowed through.
func (c BreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BreakerConfig) Validate() error {
	if c.Threshold < 1 {
		return NewValidationError("breaker", "BREAKER_THRESHOLD", ErrInvalidValue)
	}
	if c.TimeoutSeconds < 1 {
		return NewValidationError("breaker", "BREAKER_TIMEOUT_SEC", ErrInvalidValue)
	}
	return nil
}

// loadGracePeriod returns the graceful-shutdown drain deadline (§5) as a
// time.Duration, read from the shared GRACE_PERIOD_SECONDS env var.
func loadGracePeriod() (time.Duration, error) {
	return getEnvSecondsDuration("GRACE_PERIOD_SECONDS", 30)
}
