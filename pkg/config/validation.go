package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct-level validation
// rules. Call after ApplyDefaults so optional fields carry their defaults.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fieldErr := range errs {
				return fmt.Errorf("invalid configuration field %s: failed '%s' validation (value: %v)",
					fieldErr.Namespace(), fieldErr.Tag(), fieldErr.Value())
			}
		}
		return fmt.Errorf("configuration validation error: %w", err)
	}
	return nil
}
