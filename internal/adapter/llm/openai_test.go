package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/logger"
)

func newTestProvider(url string) *OpenAIProvider {
	return NewOpenAIProvider(config.LLMConfig{
		APIKey:       "test-key",
		Organization: "org-1",
		BaseURL:      url + "/",
		Timeout:      5 * time.Second,
	}, logger.Discard())
}

func TestOpenAIProviderComplete(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "org-1", r.Header.Get("OpenAI-Organization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openaiResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4-0613",
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: "## Architecture"},
				FinishReason: "stop",
			}},
			Usage: openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		})
	}))
	defer server.Close()

	comp, err := newTestProvider(server.URL).Complete(context.Background(), domain.CompletionRequest{
		Prompt: "Describe the architecture",
		Config: domain.ModelConfig{Model: "gpt-4", Temperature: 0.2, MaxTokens: 4000, PresencePenalty: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, "## Architecture", comp.Text)
	assert.Equal(t, "gpt-4-0613", comp.Model)
	assert.Equal(t, domain.Usage{InputTokens: 10, OutputTokens: 8}, comp.Usage)

	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, 4000, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	assert.InDelta(t, 0.1, got.PresencePenalty, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Describe the architecture", got.Messages[0].Content)
}

func TestOpenAIProviderHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   domain.ErrorKind
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, domain.ErrorKindRateLimit, domain.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, domain.ErrorKindAuth, domain.ErrAuthInvalid},
		{"context overflow", http.StatusBadRequest, `{"error":"maximum context length"}`, domain.ErrorKindTokenLimit, domain.ErrTokenLimit},
		{"unknown model", http.StatusNotFound, `{"error":"model not found"}`, domain.ErrorKindModel, domain.ErrModel},
		{"server error", http.StatusBadGateway, `oops`, domain.ErrorKindAPI, domain.ErrAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestProvider(server.URL).Complete(context.Background(), domain.CompletionRequest{
				Prompt: "x",
				Config: domain.ModelConfig{Model: "gpt-4"},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			var ce *domain.CompletionError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.status, ce.StatusCode)
			assert.Equal(t, "openai", ce.Provider)
		})
	}
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Complete(context.Background(), domain.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, domain.ErrAPI)
}

func TestOpenAIProviderMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Complete(context.Background(), domain.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, domain.ErrAPI)
}

func TestOpenAIProviderConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestProvider(url).Complete(context.Background(), domain.CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, domain.ErrAPI)
	assert.True(t, domain.IsRetryableError(err))
}

func TestOpenAIProviderDefaults(t *testing.T) {
	p := NewOpenAIProvider(config.LLMConfig{}, logger.Discard())
	assert.Equal(t, defaultOpenAIBaseURL, p.baseURL)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, defaultTimeout, p.client.Timeout)
}
