package schema

import "time"

// GrantConfiguration structure represents schema for `grant.yaml` CLI config.
type GrantConfiguration struct {
	Backend   Backend             `yaml:"backend" json:"backend" mapstructure:"backend"`
	Providers map[string]Provider `yaml:"providers,omitempty" json:"providers,omitempty" mapstructure:"providers"`
	Session   Session             `yaml:"session,omitempty" json:"session,omitempty" mapstructure:"session"`
	Logs      Logs                `yaml:"logs,omitempty" json:"logs,omitempty" mapstructure:"logs"`
	Retry     RetryConfig         `yaml:"retry,omitempty" json:"retry,omitempty" mapstructure:"retry"`
	Default   bool                `yaml:"default" json:"default" mapstructure:"default"`
}

// Backend describes the Grant Pro API endpoint the CLI talks to.
type Backend struct {
	BaseURL         string        `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	BaseAPIEndpoint string        `yaml:"base_api_endpoint" json:"base_api_endpoint" mapstructure:"base_api_endpoint"`
	Timeout         time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`
	GrantWindow     time.Duration `yaml:"grant_window,omitempty" json:"grant_window,omitempty" mapstructure:"grant_window"`
}

// Provider holds the per-cloud configuration consumed by `pkg/provider`.
// The regex pattern sets live in configuration because the exact strings track
// provider CLI versions, not this repository's releases.
type Provider struct {
	Kind                        string         `yaml:"kind" json:"kind" mapstructure:"kind"`
	ProxyCommand                []string       `yaml:"proxy_command,omitempty" json:"proxy_command,omitempty" mapstructure:"proxy_command"`
	UnprovisionedAccessPatterns []string       `yaml:"unprovisioned_access_patterns,omitempty" json:"unprovisioned_access_patterns,omitempty" mapstructure:"unprovisioned_access_patterns"`
	ValidAccessPatterns         []string       `yaml:"valid_access_patterns,omitempty" json:"valid_access_patterns,omitempty" mapstructure:"valid_access_patterns"`
	LoginRequiredPattern        string         `yaml:"login_required_pattern,omitempty" json:"login_required_pattern,omitempty" mapstructure:"login_required_pattern"`
	AuthSuccessPattern          string         `yaml:"auth_success_pattern,omitempty" json:"auth_success_pattern,omitempty" mapstructure:"auth_success_pattern"`
	LoginHint                   string         `yaml:"login_hint,omitempty" json:"login_hint,omitempty" mapstructure:"login_hint"`
	PropagationTimeout          time.Duration  `yaml:"propagation_timeout,omitempty" json:"propagation_timeout,omitempty" mapstructure:"propagation_timeout"`
	Region                      string         `yaml:"region,omitempty" json:"region,omitempty" mapstructure:"region"`
	Spec                        map[string]any `yaml:"spec,omitempty" json:"spec,omitempty" mapstructure:"spec"`
}

// Session holds settings for the session orchestrator.
type Session struct {
	RetryDelay       time.Duration `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty" mapstructure:"retry_delay"`
	ValidationWindow time.Duration `yaml:"validation_window,omitempty" json:"validation_window,omitempty" mapstructure:"validation_window"`
	PreTest          bool          `yaml:"pre_test,omitempty" json:"pre_test,omitempty" mapstructure:"pre_test"`
	Audit            bool          `yaml:"audit,omitempty" json:"audit,omitempty" mapstructure:"audit"`
}

// Logs configures log destination and level.
type Logs struct {
	File  string `yaml:"file,omitempty" json:"file,omitempty" mapstructure:"file"`
	Level string `yaml:"level,omitempty" json:"level,omitempty" mapstructure:"level"`
}

// RetryConfig configures the retry executor in `pkg/retry`.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty" mapstructure:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay,omitempty" json:"initial_delay,omitempty" mapstructure:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay,omitempty" json:"max_delay,omitempty" mapstructure:"max_delay"`
	Multiplier     float64       `yaml:"multiplier,omitempty" json:"multiplier,omitempty" mapstructure:"multiplier"`
	JitterFactor   float64       `yaml:"jitter_factor,omitempty" json:"jitter_factor,omitempty" mapstructure:"jitter_factor"`
	MaxElapsedTime time.Duration `yaml:"max_elapsed_time,omitempty" json:"max_elapsed_time,omitempty" mapstructure:"max_elapsed_time"`
}
