// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Usage    UsageConfig    `mapstructure:"usage"`
	Registry RegistryConfig `mapstructure:"registry"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BackendConfig selects and configures the scraping backend. When
// SelfHosted is set, URLs are fetched locally and usage is not metered.
type BackendConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	SelfHosted     bool   `mapstructure:"self_hosted"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
}

// RetryConfig governs the backoff policy for rate limited backend calls.
type RetryConfig struct {
	MaxAttempts    int     `mapstructure:"max_attempts"`
	InitialDelayMs int     `mapstructure:"initial_delay_ms"`
	BackoffFactor  float64 `mapstructure:"backoff_factor"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"`
}

// QueueConfig bounds the execution queue.
type QueueConfig struct {
	Depth int `mapstructure:"depth"`
}

// UsageConfig sets credit notification thresholds.
type UsageConfig struct {
	WarningThreshold  int64 `mapstructure:"warning_threshold"`
	CriticalThreshold int64 `mapstructure:"critical_threshold"`
}

// RegistryConfig controls the optional TTL sweep of terminal jobs.
type RegistryConfig struct {
	SweepEnabled         bool `mapstructure:"sweep_enabled"`
	SweepIntervalSeconds int  `mapstructure:"sweep_interval_seconds"`
	TTLSeconds           int  `mapstructure:"ttl_seconds"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPEQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("backend.url", "https://api.firecrawl.dev")
	v.SetDefault("backend.self_hosted", false)
	v.SetDefault("backend.timeout_seconds", 60)
	v.SetDefault("backend.user_agent", "scrapequeue/0.1")
	v.SetDefault("backend.ignore_robots", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay_ms", 1000)
	v.SetDefault("retry.backoff_factor", 2)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("queue.depth", 128)
	v.SetDefault("usage.warning_threshold", 1000)
	v.SetDefault("usage.critical_threshold", 5000)
	v.SetDefault("registry.sweep_enabled", false)
	v.SetDefault("registry.sweep_interval_seconds", 300)
	v.SetDefault("registry.ttl_seconds", 86400)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be >= 1")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	if !c.Backend.SelfHosted && c.Backend.URL == "" {
		return fmt.Errorf("backend.url must be set unless backend.self_hosted is true")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Registry.SweepEnabled && c.Registry.TTLSeconds <= 0 {
		return fmt.Errorf("registry.ttl_seconds must be > 0 when sweep is enabled")
	}
	return nil
}

// InitialDelay returns the retry initial delay as a duration.
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap as a duration.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// BackendTimeout returns the backend call timeout as a duration.
func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}
