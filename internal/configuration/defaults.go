package configuration

import (
	"time"
)

// Built-in backend names referencable from chain entries.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendGoogle    = "google"
	BackendStatic    = "static"
)

// HTTP and connection constants.
const (
	DefaultMaxIdleConns       = 100
	DefaultIdleTimeoutSeconds = 90
	DefaultTLSTimeoutSeconds  = 10
	DefaultHTTPTimeoutSeconds = 30
)

// Retry and circuit breaker constants.
const (
	DefaultMaxAttempts       = 3
	DefaultMaxElapsedTime    = 2 * time.Minute
	DefaultInitialInterval   = 250 * time.Millisecond
	DefaultMaxInterval       = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultFailureThreshold  = 5
	DefaultSuccessThreshold  = 2
	DefaultOpenTimeout       = 30 * time.Second
	DefaultHalfOpenProbes    = 1
)

// Rate limiting constants.
const (
	DefaultTokensPerSecond = 10
	DefaultBurstSize       = 20
)

// Pipeline and plugin constants.
const (
	DefaultHookTimeout  = 5 * time.Second
	DefaultCheckTimeout = 5 * time.Second
)

// Cache, store, and auto-fix constants.
const (
	DefaultCacheTTL       = 24 * time.Hour
	DefaultStorePath      = "critique.db"
	DefaultRetentionDays  = 30
	DefaultActionTimeout  = 60 * time.Second
	DefaultRulesetVersion = "1"
)

// Rule constants for the built-in static backend.
const (
	DefaultMaxLineLength = 100
)

// DefaultConfig returns production-ready configuration with sensible
// defaults: the static backend alone in the chain (no credentials
// required), resilience enabled, and a 30-day retention window.
func DefaultConfig() *Config {
	return &Config{
		HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		Providers:   map[string]ProviderConfig{},
		Chain: []ChainEntry{
			{Backend: BackendStatic, Retry: DefaultRetryConfig()},
		},
		Agent: AgentConfig{
			MaxConcurrency: 0, // available parallelism
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			TokensPerSecond: DefaultTokensPerSecond,
			BurstSize:       DefaultBurstSize,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: DefaultFailureThreshold,
			SuccessThreshold: DefaultSuccessThreshold,
			OpenTimeout:      DefaultOpenTimeout,
			HalfOpenProbes:   DefaultHalfOpenProbes,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     DefaultCacheTTL,
		},
		Pipeline: PipelineConfig{
			HookTimeout:  DefaultHookTimeout,
			CheckTimeout: DefaultCheckTimeout,
		},
		Store: StoreConfig{
			Path:          DefaultStorePath,
			RetentionDays: DefaultRetentionDays,
		},
		AutoFix: AutoFixConfig{
			ActionTimeout: DefaultActionTimeout,
		},
		Scoring: ScoringConfig{
			RulesetVersion: DefaultRulesetVersion,
		},
		Rules: RulesConfig{
			MaxLineLength:      DefaultMaxLineLength,
			TrailingWhitespace: true,
			MixedIndentation:   true,
			TodoMarkers:        true,
			DangerousCalls:     true,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			RedactContent: true,
		},
	}
}

// DefaultRetryConfig returns the standard per-backend retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     DefaultMaxAttempts,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultBackoffMultiplier,
		UseJitter:       true,
	}
}

// withRetryDefaults fills zero fields of a retry config from defaults.
// Chain entries may specify only the fields they care about; a fully
// unspecified policy takes the defaults wholesale, jitter included.
func withRetryDefaults(rc RetryConfig) RetryConfig {
	if rc == (RetryConfig{}) {
		return DefaultRetryConfig()
	}
	d := DefaultRetryConfig()
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = d.MaxAttempts
	}
	if rc.MaxElapsedTime <= 0 {
		rc.MaxElapsedTime = d.MaxElapsedTime
	}
	if rc.InitialInterval <= 0 {
		rc.InitialInterval = d.InitialInterval
	}
	if rc.MaxInterval <= 0 {
		rc.MaxInterval = d.MaxInterval
	}
	if rc.Multiplier < 1 {
		rc.Multiplier = d.Multiplier
	}
	return rc
}

// NormalizedChain returns the fallback chain with retry defaults
// applied to every entry. An empty chain falls back to the static
// backend so a zero config still reviews.
func (c *Config) NormalizedChain() []ChainEntry {
	if len(c.Chain) == 0 {
		return []ChainEntry{{Backend: BackendStatic, Retry: DefaultRetryConfig()}}
	}
	out := make([]ChainEntry, len(c.Chain))
	for i, entry := range c.Chain {
		entry.Retry = withRetryDefaults(entry.Retry)
		out[i] = entry
	}
	return out
}
