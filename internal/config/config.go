package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the triggerd application.
// Values are loaded from environment variables; see printUsage() in
// cmd/triggerd for the full list.
type Config struct {
	// StoreMode: "postgres" (durable execution log) or "memory"
	// (single-process, evaluation only).
	StoreMode string `json:"store_mode"`

	DatabaseURL  string `json:"database_url"`
	RedisAddr    string `json:"redis_addr,omitempty"`
	HTTPAddr     string `json:"http_addr"`
	TriggersFile string `json:"triggers_file,omitempty"`
	LogLevel     string `json:"log_level"`

	EvalWorkers     int `json:"eval_workers"`
	DispatchWorkers int `json:"dispatch_workers"`
	BusBufferSize   int `json:"bus_buffer_size"`

	// MaxGeneration caps chain depth; generations run 0..MaxGeneration-1.
	MaxGeneration int `json:"max_generation"`

	HandlerTimeout    time.Duration `json:"-"`
	HandlerTimeoutStr string        `json:"handler_timeout"`

	// RegistryRefresh bounds definition staleness; capped at 60s so edits
	// take effect within a minute.
	RegistryRefresh    time.Duration `json:"-"`
	RegistryRefreshStr string        `json:"registry_refresh"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`
	DispatchDrainTimeout   time.Duration `json:"-"`
	DispatchDrainTimeoutStr string       `json:"dispatch_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	SweepEnabled      bool          `json:"sweep_enabled"`
	SweepInterval     time.Duration `json:"-"`
	SweepIntervalStr  string        `json:"sweep_interval"`
	// SweepThreshold must exceed the longest handler timeout.
	SweepThreshold    time.Duration `json:"-"`
	SweepThresholdStr string        `json:"sweep_threshold"`
	SweepBatchSize    int           `json:"sweep_batch_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// LeaderLockKey: all instances sharing the same database must use the
	// same key. Leader election gates the sweeper.
	LeaderLockKey int64 `json:"leader_lock_key"`

	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		StoreMode:               os.Getenv("STORE_MODE"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		HTTPAddr:                os.Getenv("HTTP_ADDR"),
		TriggersFile:            os.Getenv("TRIGGERS_FILE"),
		LogLevel:                os.Getenv("LOG_LEVEL"),
		HandlerTimeoutStr:       os.Getenv("HANDLER_TIMEOUT"),
		RegistryRefreshStr:      os.Getenv("REGISTRY_REFRESH"),
		DBConnMaxLifetimeStr:    os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:    os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:  os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DispatchDrainTimeoutStr: os.Getenv("DISPATCH_DRAIN_TIMEOUT"),
		MetricsEnabled:          os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:             os.Getenv("METRICS_PATH"),
		SweepEnabled:            os.Getenv("SWEEP_ENABLED") == "true",
		SweepIntervalStr:        os.Getenv("SWEEP_INTERVAL"),
		SweepThresholdStr:       os.Getenv("SWEEP_THRESHOLD"),
	}

	cfg.EvalWorkers = intEnv("EVAL_WORKERS", 4)
	cfg.DispatchWorkers = intEnv("DISPATCH_WORKERS", 4)
	cfg.BusBufferSize = intEnv("BUS_BUFFER_SIZE", 100)
	cfg.MaxGeneration = intEnv("MAX_GENERATION", 5)
	cfg.SweepBatchSize = intEnv("SWEEP_BATCH_SIZE", 100)
	cfg.DBMaxOpenConns = intEnv("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = intEnv("DB_MAX_IDLE_CONNS", 5)

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	} else {
		cfg.CircuitBreakerThreshold = 5
	}
	cfg.CircuitBreakerCooldownStr = os.Getenv("CIRCUIT_BREAKER_COOLDOWN")

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := parseInt(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 651204", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 651204
	}

	cfg.LeaderRetryIntervalStr = os.Getenv("LEADER_RETRY_INTERVAL")
	cfg.LeaderHeartbeatIntervalStr = os.Getenv("LEADER_HEARTBEAT_INTERVAL")

	if cfg.StoreMode == "" {
		cfg.StoreMode = "postgres"
	}
	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HandlerTimeoutStr == "" {
		cfg.HandlerTimeoutStr = "30s"
	}
	if cfg.RegistryRefreshStr == "" {
		cfg.RegistryRefreshStr = "30s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.DispatchDrainTimeoutStr == "" {
		cfg.DispatchDrainTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.SweepIntervalStr == "" {
		cfg.SweepIntervalStr = "5m"
	}
	if cfg.SweepThresholdStr == "" {
		cfg.SweepThresholdStr = "10m"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.HandlerTimeoutStr); err == nil {
		cfg.HandlerTimeout = d
	}
	if d, err := time.ParseDuration(cfg.RegistryRefreshStr); err == nil {
		cfg.RegistryRefresh = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DispatchDrainTimeoutStr); err == nil {
		cfg.DispatchDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.SweepIntervalStr); err == nil {
		cfg.SweepInterval = d
	}
	if d, err := time.ParseDuration(cfg.SweepThresholdStr); err == nil {
		cfg.SweepThreshold = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// intEnv reads a positive integer from the environment, falling back to
// def on absence or garbage.
func intEnv(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := parseInt(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", name, s, def)
		return def
	}
	return n
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		StoreMode               string `json:"store_mode"`
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		TriggersFile            string `json:"triggers_file,omitempty"`
		LogLevel                string `json:"log_level"`
		EvalWorkers             int    `json:"eval_workers"`
		DispatchWorkers         int    `json:"dispatch_workers"`
		BusBufferSize           int    `json:"bus_buffer_size"`
		MaxGeneration           int    `json:"max_generation"`
		HandlerTimeout          string `json:"handler_timeout"`
		RegistryRefresh         string `json:"registry_refresh"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		DispatchDrainTimeout    string `json:"dispatch_drain_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		SweepEnabled            bool   `json:"sweep_enabled"`
		SweepInterval           string `json:"sweep_interval"`
		SweepThreshold          string `json:"sweep_threshold"`
		SweepBatchSize          int    `json:"sweep_batch_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
	}{
		StoreMode:               c.StoreMode,
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		HTTPAddr:                c.HTTPAddr,
		TriggersFile:            c.TriggersFile,
		LogLevel:                c.LogLevel,
		EvalWorkers:             c.EvalWorkers,
		DispatchWorkers:         c.DispatchWorkers,
		BusBufferSize:           c.BusBufferSize,
		MaxGeneration:           c.MaxGeneration,
		HandlerTimeout:          c.HandlerTimeoutStr,
		RegistryRefresh:         c.RegistryRefreshStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		DispatchDrainTimeout:    c.DispatchDrainTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		SweepEnabled:            c.SweepEnabled,
		SweepInterval:           c.SweepIntervalStr,
		SweepThreshold:          c.SweepThresholdStr,
		SweepBatchSize:          c.SweepBatchSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
