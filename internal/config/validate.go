package config

import (
	"fmt"
	"time"
)

// MaxRegistryRefresh caps how stale the definition set may get.
const MaxRegistryRefresh = 60 * time.Second

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// STORE_MODE must be "postgres" or "memory".
	if cfg.StoreMode != "postgres" && cfg.StoreMode != "memory" {
		errs = append(errs, ValidationError{
			Field:   "STORE_MODE",
			Message: fmt.Sprintf("must be 'postgres' or 'memory', got %q", cfg.StoreMode),
		})
	}

	// DATABASE_URL is required in postgres mode.
	if cfg.StoreMode == "postgres" && cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required when STORE_MODE is postgres",
		})
	}

	// Without a database there is no definition table; a triggers file is
	// the only definition source.
	if cfg.StoreMode == "memory" && cfg.TriggersFile == "" {
		errs = append(errs, ValidationError{
			Field:   "TRIGGERS_FILE",
			Message: "required when STORE_MODE is memory",
		})
	}

	errs = append(errs, validateDuration("HANDLER_TIMEOUT", cfg.HandlerTimeoutStr)...)
	errs = append(errs, validateDuration("REGISTRY_REFRESH", cfg.RegistryRefreshStr)...)
	errs = append(errs, validateDuration("SWEEP_INTERVAL", cfg.SweepIntervalStr)...)
	errs = append(errs, validateDuration("SWEEP_THRESHOLD", cfg.SweepThresholdStr)...)

	if cfg.RegistryRefresh > MaxRegistryRefresh {
		errs = append(errs, ValidationError{
			Field:   "REGISTRY_REFRESH",
			Message: fmt.Sprintf("must not exceed %s", MaxRegistryRefresh),
		})
	}

	// A sweep threshold below the handler timeout would let the sweeper
	// fail executions that are still legitimately running.
	if cfg.SweepEnabled && cfg.SweepThreshold > 0 && cfg.SweepThreshold <= cfg.HandlerTimeout {
		errs = append(errs, ValidationError{
			Field:   "SWEEP_THRESHOLD",
			Message: fmt.Sprintf("must exceed HANDLER_TIMEOUT (%s)", cfg.HandlerTimeoutStr),
		})
	}

	if cfg.MaxGeneration < 1 {
		errs = append(errs, ValidationError{
			Field:   "MAX_GENERATION",
			Message: "must be at least 1",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("invalid duration: %v", err)}}
	}
	if d <= 0 {
		return ValidationErrors{{Field: field, Message: "must be positive"}}
	}
	return nil
}
