package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "30s" in both TOML
// and YAML files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses human readable duration strings (TOML).
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// PoolConfig seeds the emission window of a pool at startup. Pools that are
// already funded keep their stored duration.
type PoolConfig struct {
	ID              uint64 `toml:"ID" yaml:"id"`
	DurationSeconds uint64 `toml:"DurationSeconds" yaml:"duration_seconds"`
}

// AdminConfig controls verification of admin bearer tokens.
type AdminConfig struct {
	JWTSecret     string `toml:"JWTSecret" yaml:"jwt_secret"`
	JWTSecretFile string `toml:"JWTSecretFile" yaml:"jwt_secret_file"`
	JWTSecretEnv  string `toml:"JWTSecretEnv" yaml:"jwt_secret_env"`
	Issuer        string `toml:"Issuer" yaml:"issuer"`
	Audience      string `toml:"Audience" yaml:"audience"`
	Scope         string `toml:"Scope" yaml:"scope"`
	// AllowMint exposes the asset mint endpoint for local deployments.
	AllowMint bool `toml:"AllowMint" yaml:"allow_mint"`
	// RequireAccountTokens makes account operations demand a bearer token
	// whose subject is the account being acted on.
	RequireAccountTokens bool `toml:"RequireAccountTokens" yaml:"require_account_tokens"`
}

// RateLimitConfig bounds request throughput per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// LoggingConfig routes structured logs to stdout or a rotated file.
type LoggingConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// TelemetryConfig configures OTLP exporters. An empty endpoint disables them.
type TelemetryConfig struct {
	Endpoint       string            `toml:"Endpoint" yaml:"endpoint"`
	Insecure       bool              `toml:"Insecure" yaml:"insecure"`
	Headers        map[string]string `toml:"Headers" yaml:"headers"`
	MetricInterval Duration          `toml:"MetricInterval" yaml:"metric_interval"`
	EnableMetrics  bool              `toml:"EnableMetrics" yaml:"enable_metrics"`
	EnableTraces   bool              `toml:"EnableTraces" yaml:"enable_traces"`
	SampleRatio    float64           `toml:"SampleRatio" yaml:"sample_ratio"`
}
