package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField indicates a required env var was empty.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrInvalidValue indicates a field has a value outside its allowed range or set.
	ErrInvalidValue = errors.New("invalid field value")
)

// ValidationError wraps a configuration validation failure with context
// about which component and field it came from.
type ValidationError struct {
	Component string // e.g. "story", "analyzer", "orchestrator", "cache", "bus"
	Field     string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %q: %v", e.Component, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a new ValidationError.
func NewValidationError(component, field string, err error) *ValidationError {
	return &ValidationError{Component: component, Field: field, Err: err}
}

// LoadError wraps a configuration load failure with the file path or
// environment variable name that failed.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError creates a new LoadError.
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
