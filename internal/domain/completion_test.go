package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletionErrorUnwrap(t *testing.T) {
	inner := errors.New("slow down")
	err := &CompletionError{Kind: ErrorKindRateLimit, Provider: "openai", StatusCode: 429, Err: inner}
	assert.ErrorIs(t, err, ErrRateLimit)
	assert.ErrorIs(t, err, inner)
	assert.True(t, IsRetryableError(err))
	assert.Equal(t, "openai: rate_limit (status 429): slow down", err.Error())

	unknown := &CompletionError{Provider: "openai"}
	assert.Empty(t, unknown.Unwrap())
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, ErrorKindRateLimit, KindForStatus(429, ""))
	assert.Equal(t, ErrorKindAuth, KindForStatus(401, ""))
	assert.Equal(t, ErrorKindAuth, KindForStatus(403, ""))
	assert.Equal(t, ErrorKindTokenLimit, KindForStatus(413, ""))
	assert.Equal(t, ErrorKindTokenLimit, KindForStatus(400, "This model's maximum context length is 8192"))
	assert.Equal(t, ErrorKindModel, KindForStatus(400, "invalid temperature"))
	assert.Equal(t, ErrorKindModel, KindForStatus(404, "model not found"))
	assert.Equal(t, ErrorKindAPI, KindForStatus(503, ""))
}

func TestUsageTotal(t *testing.T) {
	assert.Equal(t, 15, Usage{InputTokens: 10, OutputTokens: 5}.Total())
}
