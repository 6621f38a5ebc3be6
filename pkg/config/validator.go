package config

// Validator re-validates an already-loaded config, giving callers a single
// place to invoke full validation after mutating a config in tests or
// after merging in a file-based override (§6 "Configuration").
type Validator struct {
	validate func() error
}

// NewValidator wraps any config type exposing a Validate() error method.
func NewValidator(cfg interface{ Validate() error }) *Validator {
	return &Validator{validate: cfg.Validate}
}

// ValidateAll runs the wrapped config's validation.
func (v *Validator) ValidateAll() error {
	return v.validate()
}
