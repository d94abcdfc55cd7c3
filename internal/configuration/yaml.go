package configuration

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// duration decodes YAML scalars in Go duration-string form ("250ms",
// "2m") or as integer nanoseconds. gopkg.in/yaml.v3 has no native
// time.Duration support, so every duration-bearing config struct
// decodes through this type.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// UnmarshalYAML overlays the document onto the receiver field by
// field, so a file only needs to state what differs from defaults.
// Nested sections decode in place for the same reason; absent keys
// leave the receiver untouched.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		HTTPTimeout    *duration                 `yaml:"http_timeout"`
		Providers      map[string]ProviderConfig `yaml:"providers"`
		Chain          []ChainEntry              `yaml:"chain"`
		Agent          *AgentConfig              `yaml:"agent"`
		RateLimit      *RateLimitConfig          `yaml:"rate_limit"`
		CircuitBreaker *CircuitBreakerConfig     `yaml:"circuit_breaker"`
		Cache          *CacheConfig              `yaml:"cache"`
		Pipeline       *PipelineConfig           `yaml:"pipeline"`
		Plugins        *PluginConfig             `yaml:"plugins"`
		Store          *StoreConfig              `yaml:"store"`
		AutoFix        *AutoFixConfig            `yaml:"auto_fix"`
		Scoring        *ScoringConfig            `yaml:"scoring"`
		Rules          *RulesConfig              `yaml:"rules"`
		Observability  *ObservabilityConfig      `yaml:"observability"`
	}{
		Agent:          &c.Agent,
		RateLimit:      &c.RateLimit,
		CircuitBreaker: &c.CircuitBreaker,
		Cache:          &c.Cache,
		Pipeline:       &c.Pipeline,
		Plugins:        &c.Plugins,
		Store:          &c.Store,
		AutoFix:        &c.AutoFix,
		Scoring:        &c.Scoring,
		Rules:          &c.Rules,
		Observability:  &c.Observability,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.HTTPTimeout != nil {
		c.HTTPTimeout = time.Duration(*raw.HTTPTimeout)
	}
	if raw.Providers != nil {
		c.Providers = raw.Providers
	}
	if raw.Chain != nil {
		c.Chain = raw.Chain
	}
	return nil
}

func (p *ProviderConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Endpoint  *string           `yaml:"endpoint"`
		APIKeyEnv *string           `yaml:"api_key_env"`
		Model     *string           `yaml:"model"`
		Timeout   *duration         `yaml:"timeout"`
		Headers   map[string]string `yaml:"headers"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Endpoint != nil {
		p.Endpoint = *raw.Endpoint
	}
	if raw.APIKeyEnv != nil {
		p.APIKeyEnv = *raw.APIKeyEnv
	}
	if raw.Model != nil {
		p.Model = *raw.Model
	}
	if raw.Timeout != nil {
		p.Timeout = time.Duration(*raw.Timeout)
	}
	if raw.Headers != nil {
		p.Headers = raw.Headers
	}
	return nil
}

func (r *RetryConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxAttempts     *int      `yaml:"max_attempts"`
		MaxElapsedTime  *duration `yaml:"max_elapsed_time"`
		InitialInterval *duration `yaml:"initial_interval"`
		MaxInterval     *duration `yaml:"max_interval"`
		Multiplier      *float64  `yaml:"multiplier"`
		UseJitter       *bool     `yaml:"use_jitter"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxAttempts != nil {
		r.MaxAttempts = *raw.MaxAttempts
	}
	if raw.MaxElapsedTime != nil {
		r.MaxElapsedTime = time.Duration(*raw.MaxElapsedTime)
	}
	if raw.InitialInterval != nil {
		r.InitialInterval = time.Duration(*raw.InitialInterval)
	}
	if raw.MaxInterval != nil {
		r.MaxInterval = time.Duration(*raw.MaxInterval)
	}
	if raw.Multiplier != nil {
		r.Multiplier = *raw.Multiplier
	}
	if raw.UseJitter != nil {
		r.UseJitter = *raw.UseJitter
	}
	return nil
}

func (a *AgentConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxConcurrency *int      `yaml:"max_concurrency"`
		TaskTimeout    *duration `yaml:"task_timeout"`
		RequireBackend *bool     `yaml:"require_backend"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxConcurrency != nil {
		a.MaxConcurrency = *raw.MaxConcurrency
	}
	if raw.TaskTimeout != nil {
		a.TaskTimeout = time.Duration(*raw.TaskTimeout)
	}
	if raw.RequireBackend != nil {
		a.RequireBackend = *raw.RequireBackend
	}
	return nil
}

func (c *CircuitBreakerConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Enabled          *bool     `yaml:"enabled"`
		FailureThreshold *int      `yaml:"failure_threshold"`
		SuccessThreshold *int      `yaml:"success_threshold"`
		OpenTimeout      *duration `yaml:"open_timeout"`
		HalfOpenProbes   *int      `yaml:"half_open_probes"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.FailureThreshold != nil {
		c.FailureThreshold = *raw.FailureThreshold
	}
	if raw.SuccessThreshold != nil {
		c.SuccessThreshold = *raw.SuccessThreshold
	}
	if raw.OpenTimeout != nil {
		c.OpenTimeout = time.Duration(*raw.OpenTimeout)
	}
	if raw.HalfOpenProbes != nil {
		c.HalfOpenProbes = *raw.HalfOpenProbes
	}
	return nil
}

func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Enabled *bool     `yaml:"enabled"`
		TTL     *duration `yaml:"ttl"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.TTL != nil {
		c.TTL = time.Duration(*raw.TTL)
	}
	return nil
}

func (p *PipelineConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		HookTimeout  *duration `yaml:"hook_timeout"`
		CheckTimeout *duration `yaml:"check_timeout"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.HookTimeout != nil {
		p.HookTimeout = time.Duration(*raw.HookTimeout)
	}
	if raw.CheckTimeout != nil {
		p.CheckTimeout = time.Duration(*raw.CheckTimeout)
	}
	return nil
}

func (a *AutoFixConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		ActionTimeout *duration `yaml:"action_timeout"`
		WorkDir       *string   `yaml:"work_dir"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ActionTimeout != nil {
		a.ActionTimeout = time.Duration(*raw.ActionTimeout)
	}
	if raw.WorkDir != nil {
		a.WorkDir = *raw.WorkDir
	}
	return nil
}
