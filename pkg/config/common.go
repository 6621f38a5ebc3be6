package config

import (
	"os"
	"strconv"
	"time"
)

// getEnv returns the value of key, or def if unset or empty.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// requireEnv returns the value of key, or a LoadError if unset or empty.
func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", NewLoadError(key, ErrMissingRequiredField)
	}
	return val, nil
}

func getEnvInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewLoadError(key, err)
	}
	return v, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, NewLoadError(key, err)
	}
	return v, nil
}

// getEnvSecondsDuration reads an int env var expressed in seconds and
// returns it as a time.Duration, matching the §6 schema's "_SECONDS"
// suffix convention (GRACE_PERIOD_SECONDS).
func getEnvSecondsDuration(key string, defSeconds int) (time.Duration, error) {
	secs, err := getEnvInt(key, defSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
