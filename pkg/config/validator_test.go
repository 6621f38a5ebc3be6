package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidatable struct {
	err error
}

func (f fakeValidatable) Validate() error { return f.err }

func TestValidatorValidateAllPassesThrough(t *testing.T) {
	v := NewValidator(fakeValidatable{err: nil})
	require.NoError(t, v.ValidateAll())
}

func TestValidatorValidateAllPropagatesError(t *testing.T) {
	want := errors.New("boom")
	v := NewValidator(fakeValidatable{err: want})
	err := v.ValidateAll()
	require.Error(t, err)
	assert.Equal(t, want, err)
}

func TestStoryConfigValidate(t *testing.T) {
	valid := &StoryConfig{
		Bus:   BusConfig{URL: "nats://localhost:4222"},
		Repo:  RepoConfig{URL: "postgres://localhost/story", MinConns: 5, MaxConns: 20},
		Cache: CacheConfig{L2URL: "redis://localhost:6379", TTLSeconds: 3600, L1Max: 10000},
		Drift: DriftConfig{Tangential: 0.30, OffTheme: 0.25, ThemeMin: 0.70},
	}
	valid.GracePeriod = 30_000_000_000 // 30s in nanoseconds, avoids importing time just for this
	assert.NoError(t, valid.Validate())

	missingBus := *valid
	missingBus.Bus = BusConfig{}
	assert.Error(t, missingBus.Validate())

	badDrift := *valid
	badDrift.Drift.Tangential = 1.5
	assert.Error(t, badDrift.Validate())
}

func TestAnalyzerConfigValidate(t *testing.T) {
	valid := &AnalyzerConfig{
		Bus:               BusConfig{URL: "nats://localhost:4222"},
		Repo:              RepoConfig{URL: "postgres://localhost/vision", MinConns: 5, MaxConns: 20},
		Cache:             CacheConfig{L2URL: "redis://localhost:6379", TTLSeconds: 3600, L1Max: 10000},
		Breaker:           BreakerConfig{Threshold: 5, TimeoutSeconds: 60},
		WorkerCount:       3,
		GracePeriod:       30_000_000_000,
		HeartbeatInterval: 10_000_000_000,
		OrphanThreshold:   300_000_000_000,
	}
	assert.NoError(t, valid.Validate())

	zeroWorkers := *valid
	zeroWorkers.WorkerCount = 0
	assert.Error(t, zeroWorkers.Validate())

	badHeartbeat := *valid
	badHeartbeat.HeartbeatInterval = badHeartbeat.OrphanThreshold
	assert.Error(t, badHeartbeat.Validate())
}

func TestOrchestratorConfigValidate(t *testing.T) {
	valid := &OrchestratorConfig{
		Bus:                     BusConfig{URL: "nats://localhost:4222"},
		Repo:                    RepoConfig{URL: "postgres://localhost/collab", MinConns: 5, MaxConns: 20},
		Breaker:                 BreakerConfig{Threshold: 5, TimeoutSeconds: 60},
		GracePeriod:             30_000_000_000,
		RulesURL:                "http://rules.internal",
		LoreURL:                 "http://lore.internal",
		LLMURL:                  "http://llm.internal",
		MaxConcurrentPlans:      4,
		MaxRegenerationAttempts: 2,
		VerifyMinScore:          0.75,
	}
	assert.NoError(t, valid.Validate())

	missingRules := *valid
	missingRules.RulesURL = ""
	assert.Error(t, missingRules.Validate())

	badScore := *valid
	badScore.VerifyMinScore = 1.2
	assert.Error(t, badScore.Validate())
}
