// Package configuration holds the engine's configuration surface:
// provider credentials and endpoints, the fallback chain with
// per-backend retry policy, resilience parameters, pipeline budgets,
// plugin loading, persistence, auto-fix, and scoring policy.
//
// Configs are plain data: construct with DefaultConfig, overlay a YAML
// file with LoadFile, then Validate before handing to the engine.
package configuration

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-critique/internal/domain"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds comprehensive configuration for the review engine.
type Config struct {
	// HTTPTimeout bounds each provider HTTP call end to end.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout" validate:"min=0"`

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client `json:"-" yaml:"-"`

	// Providers configures each analysis backend by name.
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`

	// Chain is the fallback order with per-backend retry policy.
	Chain []ChainEntry `json:"chain" yaml:"chain" validate:"omitempty,dive"`

	// Agent configures the orchestrator.
	Agent AgentConfig `json:"agent" yaml:"agent"`

	// RateLimit configures per-provider call throttling.
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// CircuitBreaker configures per-backend failure protection.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`

	// Cache configures the fingerprint result cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Pipeline configures hook and check execution budgets.
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`

	// Plugins configures sandboxed plugin loading.
	Plugins PluginConfig `json:"plugins" yaml:"plugins"`

	// Store configures persistence and retention.
	Store StoreConfig `json:"store" yaml:"store"`

	// AutoFix configures the remediation executor.
	AutoFix AutoFixConfig `json:"auto_fix" yaml:"auto_fix"`

	// Scoring configures severity weights and the rule-set version.
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`

	// Rules configures the built-in rule-based backend.
	Rules RulesConfig `json:"rules" yaml:"rules"`

	// Observability configures logging behavior.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// ProviderConfig holds provider-specific configuration and authentication.
type ProviderConfig struct {
	// Endpoint overrides the provider's default API endpoint.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey is resolved from APIKeyEnv at load time; never serialized.
	APIKey string `json:"-" yaml:"-"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`

	// Model selects the provider model for AI backends.
	Model string `json:"model" yaml:"model"`

	// Timeout bounds a single analyze call against this provider.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"min=0"`

	// Headers are added to every request to this provider.
	Headers map[string]string `json:"headers" yaml:"headers"`
}

// ChainEntry names one backend in the fallback chain together with its
// retry policy. Entries are tried in slice order.
type ChainEntry struct {
	// Backend is the registered backend name.
	Backend string `json:"backend" yaml:"backend" validate:"required"`

	// Retry is this entry's retry/backoff policy. Zero values fall back
	// to package defaults at chain construction.
	Retry RetryConfig `json:"retry" yaml:"retry"`
}

// RetryConfig controls retry behavior for a chain entry.
// Implements exponential backoff with full jitter and a total time
// budget so a misbehaving provider cannot absorb the whole task budget.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts" validate:"min=0"`           // Maximum attempts per backend (0 = defaults)
	MaxElapsedTime  time.Duration `json:"max_elapsed_time" yaml:"max_elapsed_time" validate:"min=0"`   // Total time budget for all attempts
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval" validate:"min=0"`   // Starting backoff duration
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval" validate:"min=0"`           // Maximum backoff duration
	Multiplier      float64       `json:"multiplier" yaml:"multiplier" validate:"omitempty,min=1"`     // Exponential backoff multiplier
	UseJitter       bool          `json:"use_jitter" yaml:"use_jitter"`                                // Enable full jitter randomization
}

// AgentConfig controls the orchestrator's concurrency and strictness.
type AgentConfig struct {
	// MaxConcurrency bounds the worker pool; 0 means available parallelism.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" validate:"min=0"`

	// TaskTimeout bounds one artifact's full pipeline, 0 for no bound.
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout" validate:"min=0"`

	// RequireBackend makes chain exhaustion a hard task failure instead
	// of a degraded result with zero backend findings.
	RequireBackend bool `json:"require_backend" yaml:"require_backend"`
}

// RateLimitConfig controls per-provider token bucket throttling.
// Limits are global per provider, independent of worker pool size.
type RateLimitConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	TokensPerSecond float64 `json:"tokens_per_second" yaml:"tokens_per_second" validate:"min=0"`
	BurstSize       int     `json:"burst_size" yaml:"burst_size" validate:"min=0"`
}

// CircuitBreakerConfig controls per-backend circuit breaking.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold" validate:"min=0"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold" validate:"min=0"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout" validate:"min=0"`
	HalfOpenProbes   int           `json:"half_open_probes" yaml:"half_open_probes" validate:"min=0"`
}

// CacheConfig controls the fingerprint result cache.
type CacheConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	TTL     time.Duration `json:"ttl" yaml:"ttl" validate:"min=0"`
}

// PipelineConfig controls hook and check execution budgets.
type PipelineConfig struct {
	// HookTimeout bounds each pre/post hook invocation.
	HookTimeout time.Duration `json:"hook_timeout" yaml:"hook_timeout" validate:"min=0"`

	// CheckTimeout bounds each custom check invocation.
	CheckTimeout time.Duration `json:"check_timeout" yaml:"check_timeout" validate:"min=0"`
}

// PluginConfig controls sandboxed plugin loading.
type PluginConfig struct {
	// Dir is the plugin directory; empty disables plugin loading.
	Dir string `json:"dir" yaml:"dir"`

	// Watch reloads plugins on file changes in Dir.
	Watch bool `json:"watch" yaml:"watch"`
}

// StoreConfig controls persistence and retention.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `json:"path" yaml:"path"`

	// RetentionDays is the default cleanup cutoff.
	RetentionDays int `json:"retention_days" yaml:"retention_days" validate:"min=0"`
}

// AutoFixConfig controls the remediation executor.
type AutoFixConfig struct {
	// ActionTimeout bounds each remediation command.
	ActionTimeout time.Duration `json:"action_timeout" yaml:"action_timeout" validate:"min=0"`

	// WorkDir hosts working copies; empty uses the system temp dir.
	WorkDir string `json:"work_dir" yaml:"work_dir"`
}

// ScoringConfig controls score aggregation policy.
type ScoringConfig struct {
	// Weights maps severity names to score penalties; empty uses the
	// default policy.
	Weights map[string]float64 `json:"weights" yaml:"weights"`

	// RulesetVersion participates in the fingerprint so rule changes
	// invalidate cached results.
	RulesetVersion string `json:"ruleset_version" yaml:"ruleset_version"`
}

// ScorePolicy converts the configured weights into a validated domain
// policy, falling back to the default policy when no weights are set.
func (s ScoringConfig) ScorePolicy() (domain.ScorePolicy, error) {
	if len(s.Weights) == 0 {
		return domain.DefaultScorePolicy(), nil
	}
	policy := domain.DefaultScorePolicy()
	for name, weight := range s.Weights {
		sev, err := domain.ParseSeverity(name)
		if err != nil {
			return domain.ScorePolicy{}, fmt.Errorf("scoring weights: %w", err)
		}
		policy.Weights[sev] = weight
	}
	if err := policy.Validate(); err != nil {
		return domain.ScorePolicy{}, fmt.Errorf("scoring weights: %w", err)
	}
	return policy, nil
}

// RulesConfig controls the built-in rule-based backend.
type RulesConfig struct {
	// MaxLineLength flags lines longer than this; 0 disables the rule.
	MaxLineLength int `json:"max_line_length" yaml:"max_line_length" validate:"min=0"`

	// TrailingWhitespace flags lines ending in spaces or tabs.
	TrailingWhitespace bool `json:"trailing_whitespace" yaml:"trailing_whitespace"`

	// MixedIndentation flags lines mixing tabs and spaces in the indent.
	MixedIndentation bool `json:"mixed_indentation" yaml:"mixed_indentation"`

	// TodoMarkers flags TODO/FIXME/XXX comments.
	TodoMarkers bool `json:"todo_markers" yaml:"todo_markers"`

	// DangerousCalls flags language-specific dangerous constructs such
	// as eval and shell execution.
	DangerousCalls bool `json:"dangerous_calls" yaml:"dangerous_calls"`
}

// ObservabilityConfig controls logging behavior.
type ObservabilityConfig struct {
	LogLevel  string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `json:"log_format" yaml:"log_format" validate:"omitempty,oneof=json text"`

	// RedactContent keeps artifact content out of log lines.
	RedactContent bool `json:"redact_content" yaml:"redact_content"`
}

// Validate checks the configuration for structural and referential
// consistency: struct constraints, chain entries naming configured or
// built-in backends, and a parseable scoring policy.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	for _, entry := range c.Chain {
		if entry.Backend == BackendStatic {
			continue
		}
		if _, ok := c.Providers[entry.Backend]; !ok {
			return fmt.Errorf("chain entry %q has no provider configuration", entry.Backend)
		}
	}

	if _, err := c.Scoring.ScorePolicy(); err != nil {
		return err
	}
	return nil
}

// ResolveAPIKeys fills each provider's APIKey from its configured
// environment variable. Missing variables leave the key empty; the
// provider will fail with an auth error at call time, which keeps
// offline use of the static backend working without credentials.
func (c *Config) ResolveAPIKeys() {
	for name, p := range c.Providers {
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
			c.Providers[name] = p
		}
	}
}
