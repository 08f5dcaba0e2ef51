// Package gateway is the single entry point for LLM completions. It applies
// the response cache, the token-limit check, the rate and cost governor and
// retry with backoff around a domain.CompletionProvider.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
)

// Tokenizer counts prompt tokens for a model.
type Tokenizer interface {
	Count(model, text string) int
}

// Budget admits requests and records spend. *governor.Governor satisfies it.
type Budget interface {
	Acquire(ctx context.Context, model string, tokens int) error
	Record(model string, tokensIn, tokensOut int) float64
}

// EstimateTokens is the character heuristic used when no tokenizer is wired.
type EstimateTokens struct{}

// Count returns one token per four characters, rounded down.
func (EstimateTokens) Count(_ string, text string) int {
	return len(text) / 4
}

// Options configures a Gateway. Provider and Budget are required.
type Options struct {
	Provider  domain.CompletionProvider
	Budget    Budget
	Cache     domain.Cache
	Tokenizer Tokenizer
	Retry     RetryPolicy
	Bus       domain.EventBus
	Logger    *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Gateway wraps a provider with caching, admission control and retries.
type Gateway struct {
	provider   domain.CompletionProvider
	budget     Budget
	cache      domain.Cache
	tokenizer  Tokenizer
	retry      RetryPolicy
	classifier Classifier
	bus        domain.EventBus
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	g := &Gateway{
		provider:  opts.Provider,
		budget:    opts.Budget,
		cache:     opts.Cache,
		tokenizer: opts.Tokenizer,
		retry:     opts.Retry,
		bus:       opts.Bus,
		logger:    opts.Logger,
		sleep:     opts.sleep,
	}
	if g.tokenizer == nil {
		g.tokenizer = EstimateTokens{}
	}
	if g.retry.MaxAttempts <= 0 {
		g.retry = DefaultRetryPolicy()
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	return g
}

// Complete returns the completion text for prompt. A non-empty cacheKey
// makes the call idempotent: a cached answer is returned without touching
// the provider or the budget.
func (g *Gateway) Complete(ctx context.Context, prompt string, cfg domain.ModelConfig, cacheKey string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "gateway.complete")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("llm.model", cfg.Model))

	if cacheKey != "" && g.cache != nil {
		if text, ok := g.cache.Get(ctx, cacheKey); ok {
			span.SetAttributes(tracer.BoolAttr("cache.hit", true))
			g.logger.Debug("completion cache hit", "model", cfg.Model)
			return text, nil
		}
	}

	tokens := g.tokenizer.Count(cfg.Model, prompt)
	span.SetAttributes(tracer.IntAttr("llm.prompt_tokens", tokens))
	if cfg.MaxTokens > 0 && tokens > cfg.MaxTokens {
		err := &domain.TokenLimitError{Model: cfg.Model, Tokens: tokens, Limit: cfg.MaxTokens}
		tracer.RecordError(span, err)
		return "", err
	}

	if err := g.budget.Acquire(ctx, cfg.Model, tokens); err != nil {
		tracer.RecordError(span, err)
		return "", domain.WrapOp("Gateway.Complete", err)
	}

	start := time.Now()
	comp, err := g.callWithRetry(ctx, domain.CompletionRequest{Prompt: prompt, Config: cfg})
	if err != nil {
		tracer.RecordError(span, err)
		return "", domain.WrapOp("Gateway.Complete", err)
	}

	in, out := comp.Usage.InputTokens, comp.Usage.OutputTokens
	if in == 0 {
		in = tokens
	}
	if out == 0 {
		out = g.tokenizer.Count(cfg.Model, comp.Text)
	}
	cost := g.budget.Record(cfg.Model, in, out)

	if cacheKey != "" && g.cache != nil {
		g.cache.Set(ctx, cacheKey, comp.Text)
	}

	span.SetAttributes(
		tracer.IntAttr("llm.input_tokens", in),
		tracer.IntAttr("llm.output_tokens", out),
		tracer.Float64Attr("llm.cost", cost),
	)
	tracer.SetOK(span)
	g.logger.Info("completion done",
		"provider", g.provider.Name(),
		"model", cfg.Model,
		"input_tokens", in,
		"output_tokens", out,
		"cost", cost,
		"duration", time.Since(start),
	)
	g.publish(ctx, domain.EventCompletionDone, map[string]any{
		"model":         cfg.Model,
		"input_tokens":  in,
		"output_tokens": out,
		"cost":          cost,
	})
	return comp.Text, nil
}

func (g *Gateway) callWithRetry(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	var lastErr error
	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.retry.Backoff(attempt - 1)
			g.logger.Info("retrying completion after error",
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr,
			)
			g.publish(ctx, domain.EventCompletionRetried, map[string]any{
				"model":   req.Config.Model,
				"attempt": attempt + 1,
				"error":   lastErr.Error(),
			})
			if err := g.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		comp, err := g.provider.Complete(ctx, req)
		if err == nil {
			return comp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c := g.classifier.Classify(err)
		if c.Degraded {
			g.logger.Warn("completion error classified from message text",
				"kind", c.Kind.String(),
				"keyword", c.Keyword,
				"error", err,
			)
		}
		lastErr = c.Err()
		if !c.Retryable {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (g *Gateway) publish(ctx context.Context, typ domain.EventType, payload map[string]any) {
	if g.bus == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	g.bus.Publish(ctx, domain.Event{Type: typ, Timestamp: time.Now(), Payload: raw})
}
