package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Travbz/doc-smith/internal/adapter/cache"
	"github.com/Travbz/doc-smith/internal/adapter/hosting"
	"github.com/Travbz/doc-smith/internal/adapter/llm"
	"github.com/Travbz/doc-smith/internal/adapter/notify"
	"github.com/Travbz/doc-smith/internal/adapter/runstore"
	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/usecase/budget"
	"github.com/Travbz/doc-smith/internal/usecase/docsmith"
	"github.com/Travbz/doc-smith/internal/usecase/eventbus"
	"github.com/Travbz/doc-smith/internal/usecase/gateway"
	"github.com/Travbz/doc-smith/internal/usecase/governor"
	"github.com/Travbz/doc-smith/internal/usecase/workflow"
)

// memoryCacheEntries sizes the in-memory layer in front of the disk cache.
const memoryCacheEntries = 256

// app holds the wired components of one CLI invocation.
type app struct {
	bus      *eventbus.Bus
	gov      *governor.Governor
	git      *hosting.Git
	pipeline *docsmith.Pipeline
	coord    *workflow.Coordinator
	log      *slog.Logger
	closers  []func() error
}

// buildApp assembles provider, governor, cache, gateway, hosting, agents,
// run store, coordinator and notifiers from cfg.
func buildApp(cfg *config.Config, dryRun bool, log *slog.Logger) (*app, error) {
	a := &app{bus: eventbus.New(log), log: log}

	provider, err := createProvider(cfg.LLM, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
		log.Info("llm circuit breaker enabled", "max_failures", cfg.LLM.CircuitBreaker.MaxFailures)
	}

	govOpts := governor.OptionsFromConfig(cfg.Limits)
	govOpts.Logger = log
	a.gov = governor.New(govOpts)

	var completionCache domain.Cache
	if cfg.Cache.Enabled {
		fc, err := cache.NewFileCache(cfg.Cache.Dir, cfg.Cache.TTL, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		if n, err := fc.Purge(); err == nil && n > 0 {
			log.Debug("purged expired cache entries", "count", n)
		}
		completionCache = cache.NewLRU(fc, memoryCacheEntries, cfg.Cache.TTL)
	}

	gw := gateway.New(gateway.Options{
		Provider:  provider,
		Budget:    a.gov,
		Cache:     completionCache,
		Tokenizer: llm.NewTokenizer(log),
		Retry:     gateway.RetryPolicyFromConfig(cfg.Retry),
		Bus:       a.bus,
		Logger:    log,
	})

	prompts, err := docsmith.LoadPrompts()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.git = hosting.NewGit(cfg.Hosting, log)
	a.pipeline, err = docsmith.New(docsmith.Options{
		Git:          a.git,
		PullRequests: hosting.NewGitHub(cfg.Hosting, log),
		Completer:    gw,
		Models:       budget.FromConfig(cfg.Models),
		Prompts:      prompts,
		Hosting:      cfg.Hosting,
		Scan:         cfg.Scan,
		DryRun:       dryRun,
		Bus:          a.bus,
		Logger:       log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	store, closeStore, err := runstore.Open(cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeStore)

	coordOpts := workflow.OptionsFromConfig(cfg.Workflow)
	coordOpts.Definitions = a.pipeline.Definitions
	coordOpts.Store = store
	coordOpts.Bus = a.bus
	coordOpts.Logger = log
	a.coord, err = workflow.NewCoordinator(coordOpts)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifiers, err := buildNotifiers(cfg.Notify, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	unsub := notify.NewSubscriber(notifiers, log).Attach(a.bus)
	a.closers = append(a.closers, func() error { unsub(); return nil })

	return a, nil
}

// buildNotifiers creates the configured chat notifiers.
func buildNotifiers(cfg config.NotifyConfig, log *slog.Logger) ([]domain.Notifier, error) {
	var out []domain.Notifier
	if cfg.Slack != nil {
		n, err := buildSlackNotifier(*cfg.Slack)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if cfg.Discord != nil {
		n, err := buildDiscordNotifier(*cfg.Discord)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	for _, n := range out {
		log.Info("notifier enabled", "notifier", n.Name())
	}
	return out, nil
}

// createProvider builds the configured completion provider.
func createProvider(cfg config.LLMConfig, log *slog.Logger) (domain.CompletionProvider, error) {
	switch cfg.Provider {
	case "openai", "":
		return llm.NewOpenAIProvider(cfg, log), nil
	case "bedrock":
		return createBedrockProvider(cfg, log)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", domain.ErrConfig, cfg.Provider)
	}
}

// stepNames lists the steps of a workflow type for the progress view.
func (a *app) stepNames(workflowType string) []string {
	for _, d := range a.pipeline.Definitions {
		if d.Type != workflowType {
			continue
		}
		names := make([]string, len(d.Steps))
		for i, s := range d.Steps {
			names[i] = s.Name
		}
		return names
	}
	return nil
}

// Close stops live runs, then releases stores, subscribers and the bus.
func (a *app) Close() {
	if a.coord != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.coord.Shutdown(ctx); err != nil {
			a.log.Warn("coordinator shutdown", "error", err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.bus.Close()
}
