// Package config loads tool gateway settings from an optional YAML file and
// the process environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all process settings.
type Config struct {
	HTTPPort            string  `yaml:"http_port"`
	GRPCPort            string  `yaml:"grpc_port"`
	LogLevel            string  `yaml:"log_level"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	DefaultTimeoutMs    int     `yaml:"default_timeout_ms"`
	IdempotencyTTLS     int     `yaml:"idempotency_ttl_s"` // 0 = process lifetime
	IdempotencySweep    string  `yaml:"idempotency_sweep"` // cron spec
	AuditCapacity       int     `yaml:"audit_capacity"`    // 0 = unbounded
	ClickHouseDSN       string  `yaml:"clickhouse_dsn"`
	PostgresDSN         string  `yaml:"postgres_dsn"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		HTTPPort:            "8080",
		GRPCPort:            "50054",
		LogLevel:            "info",
		ConfidenceThreshold: 0.7,
		DefaultTimeoutMs:    8000,
		IdempotencySweep:    "@every 1m",
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("Load: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load: parse config: %w", err)
		}
	}

	cfg.HTTPPort = envOrDefault("TOOL_GATEWAY_HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envOrDefault("TOOL_GATEWAY_GRPC_PORT", cfg.GRPCPort)
	cfg.LogLevel = envOrDefault("TOOL_GATEWAY_LOG_LEVEL", cfg.LogLevel)
	cfg.ConfidenceThreshold = envOrDefaultFloat("TOOL_GATEWAY_CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	cfg.DefaultTimeoutMs = envOrDefaultInt("TOOL_GATEWAY_DEFAULT_TIMEOUT_MS", cfg.DefaultTimeoutMs)
	cfg.IdempotencyTTLS = envOrDefaultInt("TOOL_GATEWAY_IDEMPOTENCY_TTL_S", cfg.IdempotencyTTLS)
	cfg.IdempotencySweep = envOrDefault("TOOL_GATEWAY_IDEMPOTENCY_SWEEP", cfg.IdempotencySweep)
	cfg.AuditCapacity = envOrDefaultInt("TOOL_GATEWAY_AUDIT_CAPACITY", cfg.AuditCapacity)
	cfg.ClickHouseDSN = envOrDefault("CLICKHOUSE_DSN", cfg.ClickHouseDSN)
	cfg.PostgresDSN = envOrDefault("POSTGRES_DSN", cfg.PostgresDSN)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c Config) Validate() error {
	var errs []error
	if err := validPort(c.HTTPPort); err != nil {
		errs = append(errs, fmt.Errorf("http_port: %w", err))
	}
	if err := validPort(c.GRPCPort); err != nil {
		errs = append(errs, fmt.Errorf("grpc_port: %w", err))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 || math.IsNaN(c.ConfidenceThreshold) {
		errs = append(errs, fmt.Errorf("confidence_threshold %v outside [0,1]", c.ConfidenceThreshold))
	}
	if c.DefaultTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("default_timeout_ms must be positive, got %d", c.DefaultTimeoutMs))
	}
	if c.IdempotencyTTLS < 0 {
		errs = append(errs, fmt.Errorf("idempotency_ttl_s must not be negative, got %d", c.IdempotencyTTLS))
	}
	if c.AuditCapacity < 0 {
		errs = append(errs, fmt.Errorf("audit_capacity must not be negative, got %d", c.AuditCapacity))
	}
	return errors.Join(errs...)
}

// DefaultTimeout returns DefaultTimeoutMs as a duration.
func (c Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMs) * time.Millisecond
}

// IdempotencyTTL returns IdempotencyTTLS as a duration.
func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLS) * time.Second
}

func validPort(p string) error {
	n, err := strconv.Atoi(p)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", p)
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
