package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Travbz/doc-smith/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      domain.ErrorKind
		retryable bool
		degraded  bool
	}{
		{"structured rate limit", &domain.CompletionError{Kind: domain.ErrorKindRateLimit, StatusCode: 429}, domain.ErrorKindRateLimit, true, false},
		{"structured auth", &domain.CompletionError{Kind: domain.ErrorKindAuth}, domain.ErrorKindAuth, false, false},
		{"wrapped sentinel", fmt.Errorf("call: %w", domain.ErrModel), domain.ErrorKindModel, false, false},
		{"token limit error", &domain.TokenLimitError{Model: "m", Tokens: 2, Limit: 1}, domain.ErrorKindTokenLimit, false, false},
		{"status 429", errors.New("openai: API error 429: slow down"), domain.ErrorKindRateLimit, true, false},
		{"status 401", errors.New("API error 401: unauthorized"), domain.ErrorKindAuth, false, false},
		{"status 400 overflow", errors.New("API error 400: context length exceeded"), domain.ErrorKindTokenLimit, false, false},
		{"status 400 other", errors.New("API error 400: bad temperature"), domain.ErrorKindModel, false, false},
		{"status 502", errors.New("API error 502: bad gateway"), domain.ErrorKindAPI, true, false},
		{"keyword rate", errors.New("Rate limit reached for requests"), domain.ErrorKindRateLimit, true, true},
		{"keyword context", errors.New("This model's maximum context length is 8192"), domain.ErrorKindTokenLimit, false, true},
		{"keyword network", errors.New("dial tcp: connection refused"), domain.ErrorKindAPI, true, true},
		{"unrecognised", errors.New("something odd"), domain.ErrorKindAPI, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classifier{}.Classify(tt.err)
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.retryable, c.Retryable)
			assert.Equal(t, tt.degraded, c.Degraded)
			assert.ErrorIs(t, c.Err(), tt.kind.Sentinel())
			assert.ErrorIs(t, c.Err(), tt.err)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	c := Classifier{}.Classify(nil)
	assert.NoError(t, c.Err())
}

func TestClassifyContextCanceledNotRetryable(t *testing.T) {
	c := Classifier{}.Classify(fmt.Errorf("post: %w", context.Canceled))
	assert.False(t, c.Retryable)
}
