package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// DetectorFileConfig is the optional YAML side-file referenced by §6's
// "off-theme activity set" and per-detector confidence/severity
// thresholds. Its path comes from DETECTOR_CONFIG_FILE; when unset,
// DefaultDetectorFileConfig is used.
type DetectorFileConfig struct {
	// OffThemeActivities lists activity labels that count toward the
	// off-theme fraction in drift detection (§4.5).
	OffThemeActivities []string `yaml:"off_theme_activities"`

	// Detectors maps a detector name (§4.8) to its confidence/severity
	// thresholds.
	Detectors map[string]DetectorThresholds `yaml:"detectors"`
}

// DetectorThresholds are the per-detector tunables from §4.8.
type DetectorThresholds struct {
	MinConfidence float64 `yaml:"min_confidence"`
	Severity      string  `yaml:"severity"`
}

// DefaultDetectorFileConfig returns built-in defaults used when no
// DETECTOR_CONFIG_FILE is configured.
func DefaultDetectorFileConfig() *DetectorFileConfig {
	return &DetectorFileConfig{
		OffThemeActivities: []string{"idle_emote_spam", "unrelated_sidequest", "grinding_unrelated_zone"},
		Detectors: map[string]DetectorThresholds{
			"animation":   {MinConfidence: 0.5, Severity: "minor"},
			"physics":     {MinConfidence: 0.5, Severity: "moderate"},
			"rendering":   {MinConfidence: 0.5, Severity: "minor"},
			"lighting":    {MinConfidence: 0.5, Severity: "minor"},
			"performance": {MinConfidence: 0.5, Severity: "major"},
			"flow":        {MinConfidence: 0.5, Severity: "moderate"},
		},
	}
}

// LoadDetectorFileConfig reads and `${VAR}`-expands the YAML file at
// DETECTOR_CONFIG_FILE, falling back to defaults when the env var is
// unset.
func LoadDetectorFileConfig() (*DetectorFileConfig, error) {
	path := os.Getenv("DETECTOR_CONFIG_FILE")
	if path == "" {
		return DefaultDetectorFileConfig(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var cfg DetectorFileConfig
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, NewLoadError(path, err)
	}
	return &cfg, nil
}
