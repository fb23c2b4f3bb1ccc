// Package config holds the single options structure the orchestration core
// is configured from, loaded from YAML with defaults applied underneath.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config enumerates every recognized knob of the orchestration core.
type Config struct {
	// MaxParallelTasksPerSession bounds fan-out within one session.
	MaxParallelTasksPerSession int `yaml:"max_parallel_tasks_per_session" json:"max_parallel_tasks_per_session"`

	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`

	AutoSaveIntervalSeconds int `yaml:"auto_save_interval_seconds" json:"auto_save_interval_seconds"`

	CompressionThresholdBytes int `yaml:"compression_threshold_bytes" json:"compression_threshold_bytes"`

	Retry   RetryConfig   `yaml:"retry" json:"retry"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
	Pool    PoolConfig    `yaml:"pool" json:"pool"`

	ApprovalDefaultTimeoutSeconds int `yaml:"approval_default_timeout_seconds" json:"approval_default_timeout_seconds"`

	GovernanceReviewTimeoutSeconds int `yaml:"governance_review_timeout_seconds" json:"governance_review_timeout_seconds"`

	Tracer TracerConfig `yaml:"tracer" json:"tracer"`

	PersistencePath string `yaml:"persistence_path" json:"persistence_path"`
	SessionDir      string `yaml:"session_dir" json:"session_dir"`
}

// RetryConfig configures internal/resilience.RetryWithBackoff.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	Cap         time.Duration `yaml:"cap" json:"cap"`
}

// BreakerConfig configures internal/resilience.CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	Window           time.Duration `yaml:"window" json:"window"`
	Cooldown         time.Duration `yaml:"cooldown" json:"cooldown"`
}

// PoolConfig configures internal/resilience.Pool.
type PoolConfig struct {
	MaxConnections int           `yaml:"max_connections" json:"max_connections"`
	MaxKeepalive   int           `yaml:"max_keepalive" json:"max_keepalive"`
	KeepaliveTTL   time.Duration `yaml:"keepalive_ttl" json:"keepalive_ttl"`
}

// TracerConfig configures internal/telemetry.Tracer sampling.
type TracerConfig struct {
	HeadSampleRate   float64 `yaml:"head_sample_rate" json:"head_sample_rate"`
	TailSampleErrors bool    `yaml:"tail_sample_errors" json:"tail_sample_errors"`
}

// Default returns the defaults every component falls back to.
func Default() *Config {
	return &Config{
		MaxParallelTasksPerSession: 5,
		MaxSessions:                50,
		AutoSaveIntervalSeconds:    30,
		CompressionThresholdBytes:  10 * 1024,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			Cap:         30 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Window:           1 * time.Minute,
			Cooldown:         30 * time.Second,
		},
		Pool: PoolConfig{
			MaxConnections: 10,
			MaxKeepalive:   5,
			KeepaliveTTL:   90 * time.Second,
		},
		ApprovalDefaultTimeoutSeconds:  30,
		GovernanceReviewTimeoutSeconds: 5,
		Tracer: TracerConfig{
			HeadSampleRate:   1.0,
			TailSampleErrors: true,
		},
		PersistencePath: "orchestrator.db",
		SessionDir:      ".sessions",
	}
}

// Load reads and parses a YAML configuration file, filling unset fields from
// Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data over a copy of the default config.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
