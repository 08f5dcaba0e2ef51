package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Travbz/doc-smith/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets callers match validation failures with errors.Is(err, domain.ErrConfig).
func (v *ValidationError) Unwrap() error { return domain.ErrConfig }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Credentials are checked separately by RequireCredentials.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateHosting(cfg, ve)
	validateModels(cfg, ve)
	validateLimits(cfg, ve)
	validateRetry(cfg, ve)
	validateCache(cfg, ve)
	validateWorkflow(cfg, ve)
	validateStore(cfg, ve)
	validateNotify(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviders = map[string]bool{
	"openai":  true,
	"bedrock": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if !validProviders[cfg.LLM.Provider] {
		ve.Add("llm.provider %q is not supported (want openai or bedrock)", cfg.LLM.Provider)
	}
	if cfg.LLM.Provider == "openai" {
		if _, err := url.ParseRequestURI(cfg.LLM.BaseURL); err != nil {
			ve.Add("llm.base_url %q is not a valid URL", cfg.LLM.BaseURL)
		}
	}
	if cfg.LLM.Timeout <= 0 {
		ve.Add("llm.timeout must be > 0")
	}
	cb := cfg.LLM.CircuitBreaker
	if cb.Enabled {
		if cb.MaxFailures <= 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateHosting(cfg *Config, ve *ValidationError) {
	h := cfg.Hosting
	if _, err := url.ParseRequestURI(h.APIURL); err != nil {
		ve.Add("hosting.api_url %q is not a valid URL", h.APIURL)
	}
	if h.BaseBranch == "" {
		ve.Add("hosting.base_branch must not be empty")
	}
	if h.BranchPrefix == "" {
		ve.Add("hosting.branch_prefix must not be empty")
	}
	if strings.HasPrefix(h.DocsPath, "/") || strings.Contains(h.DocsPath, "..") {
		ve.Add("hosting.docs_path %q must be relative to the repository root", h.DocsPath)
	}
	if h.RequestsPerSecond <= 0 {
		ve.Add("hosting.requests_per_second must be > 0")
	}
	if h.Burst <= 0 {
		ve.Add("hosting.burst must be > 0")
	}
}

func validateModels(cfg *Config, ve *ValidationError) {
	for role, m := range cfg.Models {
		if m.Model == "" {
			ve.Add("models.%s.model must not be empty", role)
		}
		if m.MaxTokens <= 0 {
			ve.Add("models.%s.max_tokens must be > 0", role)
		}
		if m.Temperature < 0 || m.Temperature > 2 {
			ve.Add("models.%s.temperature must be within [0, 2]", role)
		}
	}
}

func validateLimits(cfg *Config, ve *ValidationError) {
	if cfg.Limits.RequestsPerMinute <= 0 {
		ve.Add("limits.requests_per_minute must be > 0")
	}
	if cfg.Limits.TokensPerMinute <= 0 {
		ve.Add("limits.tokens_per_minute must be > 0")
	}
	if cfg.Limits.Window <= 0 {
		ve.Add("limits.window must be > 0")
	}
	for model, l := range cfg.Limits.Models {
		if l.RequestsPerMinute < 0 || l.TokensPerMinute < 0 {
			ve.Add("limits.models.%s must not be negative", model)
		}
	}
}

func validateRetry(cfg *Config, ve *ValidationError) {
	if cfg.Retry.MaxAttempts <= 0 {
		ve.Add("retry.max_attempts must be > 0")
	}
	if cfg.Retry.BaseDelay < 0 {
		ve.Add("retry.base_delay must not be negative")
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		ve.Add("retry.max_delay must be >= retry.base_delay")
	}
}

func validateCache(cfg *Config, ve *ValidationError) {
	if !cfg.Cache.Enabled {
		return
	}
	if cfg.Cache.Dir == "" {
		ve.Add("cache.dir must not be empty when the cache is enabled")
	}
	if cfg.Cache.TTL <= 0 {
		ve.Add("cache.ttl must be > 0 when the cache is enabled")
	}
}

func validateWorkflow(cfg *Config, ve *ValidationError) {
	if cfg.Workflow.MaxRunning <= 0 {
		ve.Add("workflow.max_running must be > 0")
	}
	if cfg.Workflow.RetainFor < 0 {
		ve.Add("workflow.retain_for must not be negative")
	}
	if cfg.Workflow.StepTimeout < 0 {
		ve.Add("workflow.step_timeout must not be negative")
	}
}

var validStoreBackends = map[string]bool{
	"memory": true,
	"file":   true,
	"sqlite": true,
}

func validateStore(cfg *Config, ve *ValidationError) {
	if !validStoreBackends[cfg.Store.Backend] {
		ve.Add("store.backend %q is not supported (want memory, file or sqlite)", cfg.Store.Backend)
	}
	if cfg.Store.Backend != "memory" && cfg.Store.Path == "" {
		ve.Add("store.path must not be empty for backend %q", cfg.Store.Backend)
	}
}

func validateNotify(cfg *Config, ve *ValidationError) {
	if s := cfg.Notify.Slack; s != nil && (s.Token == "" || s.Channel == "") {
		ve.Add("notify.slack requires token and channel")
	}
	if d := cfg.Notify.Discord; d != nil && (d.Token == "" || d.ChannelID == "") {
		ve.Add("notify.discord requires token and channel_id")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not valid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "json", "text":
	default:
		ve.Add("logger.format %q is not valid (want json or text)", cfg.Logger.Format)
	}
}
