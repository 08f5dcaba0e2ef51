package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements domain.CompletionProvider for any
// OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	name         string
	apiKey       string
	organization string
	baseURL      string
	client       *http.Client
	logger       *slog.Logger
}

// NewOpenAIProvider creates a provider with configured timeouts.
func NewOpenAIProvider(cfg config.LLMConfig, logger *slog.Logger) *OpenAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	return &OpenAIProvider{
		name:         "openai",
		apiKey:       cfg.APIKey,
		organization: cfg.Organization,
		baseURL:      baseURL,
		client:       NewHTTPClient(cfg.Timeout),
		logger:       logger,
	}
}

// Complete implements domain.CompletionProvider.
func (p *OpenAIProvider) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.complete",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Config.Model),
		),
	)
	defer span.End()

	body, err := json.Marshal(toOpenAIRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	if p.organization != "" {
		headers["OpenAI-Organization"] = p.organization
	}

	respBody, err := doJSONRequest(ctx, p.client, p.name, p.baseURL+"/chat/completions", body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		tracer.RecordError(span, err)
		return nil, &domain.CompletionError{Kind: domain.ErrorKindAPI, Provider: p.name, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if len(oaiResp.Choices) == 0 {
		err := &domain.CompletionError{Kind: domain.ErrorKindAPI, Provider: p.name, Err: errors.New("response has no choices")}
		tracer.RecordError(span, err)
		return nil, err
	}

	result := &domain.Completion{
		Text:  oaiResp.Choices[0].Message.Content,
		Model: oaiResp.Model,
		Usage: domain.Usage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
		},
	}
	if result.Model == "" {
		result.Model = req.Config.Model
	}
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logCompletion(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.CompletionProvider.
func (p *OpenAIProvider) Name() string { return p.name }

// --- OpenAI API wire types ---

type openaiRequest struct {
	Model            string          `json:"model"`
	Messages         []openaiMessage `json:"messages"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	Temperature      float64         `json:"temperature"`
	FrequencyPenalty float64         `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64         `json:"presence_penalty,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Created int64          `json:"created"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOpenAIRequest(req domain.CompletionRequest) openaiRequest {
	return openaiRequest{
		Model:            req.Config.Model,
		Messages:         []openaiMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:        req.Config.MaxTokens,
		Temperature:      req.Config.Temperature,
		FrequencyPenalty: req.Config.FrequencyPenalty,
		PresencePenalty:  req.Config.PresencePenalty,
	}
}

// logCompletion logs the standard debug message after a successful call.
func logCompletion(logger *slog.Logger, providerName string, result *domain.Completion) {
	logger.Debug("llm completion finished",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.Total(),
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.input_tokens", usage.InputTokens),
		tracer.IntAttr("llm.output_tokens", usage.OutputTokens),
	)
}

// defaultTimeout bounds a single completion call.
const defaultTimeout = 120 * time.Second
