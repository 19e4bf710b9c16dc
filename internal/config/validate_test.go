package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		StoreMode:          "postgres",
		DatabaseURL:        "postgres://localhost/mizan",
		HandlerTimeoutStr:  "30s",
		HandlerTimeout:     30 * time.Second,
		RegistryRefreshStr: "30s",
		RegistryRefresh:    30 * time.Second,
		SweepIntervalStr:   "5m",
		SweepThresholdStr:  "10m",
		SweepThreshold:     10 * time.Minute,
		MaxGeneration:      5,
	}
}

// TestValidate covers each rejection rule and the passing baseline.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad store mode", func(c *Config) { c.StoreMode = "sqlite" }, "STORE_MODE"},
		{"postgres needs url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"memory needs triggers file", func(c *Config) {
			c.StoreMode = "memory"
			c.DatabaseURL = ""
		}, "TRIGGERS_FILE"},
		{"bad handler timeout", func(c *Config) { c.HandlerTimeoutStr = "soon" }, "HANDLER_TIMEOUT"},
		{"negative refresh", func(c *Config) { c.RegistryRefreshStr = "-10s" }, "REGISTRY_REFRESH"},
		{"refresh too slow", func(c *Config) {
			c.RegistryRefreshStr = "5m"
			c.RegistryRefresh = 5 * time.Minute
		}, "REGISTRY_REFRESH"},
		{"sweep threshold below handler timeout", func(c *Config) {
			c.SweepEnabled = true
			c.SweepThresholdStr = "10s"
			c.SweepThreshold = 10 * time.Second
		}, "SWEEP_THRESHOLD"},
		{"zero max generation", func(c *Config) { c.MaxGeneration = 0 }, "MAX_GENERATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

// TestValidationErrors_Message verifies multi-error formatting lists each
// field.
func TestValidationErrors_Message(t *testing.T) {
	cfg := validConfig()
	cfg.StoreMode = "sqlite"
	cfg.MaxGeneration = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "STORE_MODE") || !strings.Contains(msg, "MAX_GENERATION") {
		t.Errorf("message missing fields: %s", msg)
	}
	if !strings.Contains(msg, "validation errors") {
		t.Errorf("message missing count header: %s", msg)
	}
}
