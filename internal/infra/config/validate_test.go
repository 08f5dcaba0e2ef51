package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationErrors(t *testing.T, cfg *Config) []string {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		return nil
	}
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	return ve.Errors
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Provider = "palm"
	cfg.Limits.TokensPerMinute = 0
	cfg.Retry.MaxAttempts = 0
	cfg.Store.Backend = "redis"

	errs := validationErrors(t, cfg)
	assert.Len(t, errs, 4)
}

func TestValidateModels(t *testing.T) {
	cfg := Defaults()
	cfg.Models = map[string]ModelEntry{
		"documentation": {Model: "", MaxTokens: 0, Temperature: 3},
	}
	errs := validationErrors(t, cfg)
	assert.Len(t, errs, 3)
}

func TestValidateDocsPath(t *testing.T) {
	for _, p := range []string{"/etc", "../outside"} {
		cfg := Defaults()
		cfg.Hosting.DocsPath = p
		assert.NotEmpty(t, validationErrors(t, cfg), p)
	}
}

func TestValidateCacheDisabledSkipsChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Cache.Enabled = false
	cfg.Cache.Dir = ""
	cfg.Cache.TTL = 0
	assert.Empty(t, validationErrors(t, cfg))
}

func TestValidateStorePath(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = ""
	assert.Len(t, validationErrors(t, cfg), 1)
}

func TestValidateNotify(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Discord = &DiscordNotifyConfig{Token: "t"}
	assert.Len(t, validationErrors(t, cfg), 1)
}

func TestValidateBedrockSkipsBaseURL(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Provider = "bedrock"
	cfg.LLM.BaseURL = ""
	assert.Empty(t, validationErrors(t, cfg))
}
