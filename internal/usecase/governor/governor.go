// Package governor enforces per-model request and token budgets over a sliding
// window and accumulates spend.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/logger"
)

// Limit is a per-window budget. Zero disables that dimension.
type Limit struct {
	RequestsPerWindow int
	TokensPerWindow   int
}

// Options configures a Governor.
type Options struct {
	Window   time.Duration
	Default  Limit
	PerModel map[string]Limit
	Prices   map[string]Price
	Clock    Clock
	Logger   *slog.Logger
}

// OptionsFromConfig maps the limits section of the config to Options.
func OptionsFromConfig(cfg config.LimitsConfig) Options {
	opts := Options{
		Window: cfg.Window,
		Default: Limit{
			RequestsPerWindow: cfg.RequestsPerMinute,
			TokensPerWindow:   cfg.TokensPerMinute,
		},
		PerModel: make(map[string]Limit, len(cfg.Models)),
	}
	for model, l := range cfg.Models {
		lim := opts.Default
		if l.RequestsPerMinute > 0 {
			lim.RequestsPerWindow = l.RequestsPerMinute
		}
		if l.TokensPerMinute > 0 {
			lim.TokensPerWindow = l.TokensPerMinute
		}
		opts.PerModel[model] = lim
	}
	return opts
}

// ModelUsage is the ledger for one model.
type ModelUsage struct {
	Reservations   int     `json:"reservations"`
	ReservedTokens int     `json:"reserved_tokens"`
	Requests       int     `json:"requests"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	Cost           float64 `json:"cost"`
}

// TotalTokens returns billed input plus output tokens.
func (u ModelUsage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// Summary is the cumulative spend report.
type Summary struct {
	TotalCost             float64               `json:"total_cost"`
	TotalRequests         int                   `json:"total_requests"`
	TotalTokens           int                   `json:"total_tokens"`
	AverageCostPerRequest float64               `json:"average_cost_per_request"`
	Models                map[string]ModelUsage `json:"model_usage"`
}

type sample struct {
	at     time.Time
	tokens int
}

type modelState struct {
	window []sample // ordered by at
	usage  ModelUsage
}

// prune drops samples that have left the window ending at now.
func (s *modelState) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(s.window) && !s.window[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		s.window = append(s.window[:0], s.window[i:]...)
	}
}

func (s *modelState) windowTokens() int {
	total := 0
	for _, smp := range s.window {
		total += smp.tokens
	}
	return total
}

// admitWait returns zero when tokens can be admitted now, otherwise how long
// until enough samples expire. The window must already be pruned.
func (s *modelState) admitWait(now time.Time, tokens int, lim Limit, window time.Duration) time.Duration {
	var until time.Time

	if lim.RequestsPerWindow > 0 && len(s.window) >= lim.RequestsPerWindow {
		// The oldest len-(RPW-1) samples must leave before one more fits.
		expire := s.window[len(s.window)-lim.RequestsPerWindow].at.Add(window)
		if expire.After(until) {
			until = expire
		}
	}

	if lim.TokensPerWindow > 0 {
		used := s.windowTokens()
		for i := 0; used+tokens > lim.TokensPerWindow && i < len(s.window); i++ {
			used -= s.window[i].tokens
			if used+tokens <= lim.TokensPerWindow {
				expire := s.window[i].at.Add(window)
				if expire.After(until) {
					until = expire
				}
			}
		}
	}

	if until.IsZero() {
		return 0
	}
	if d := until.Sub(now); d > 0 {
		return d
	}
	return time.Nanosecond
}

// Governor admits completion calls against per-model budgets and keeps the
// usage ledger. Admission check and reservation happen under one lock.
type Governor struct {
	mu       sync.Mutex
	window   time.Duration
	def      Limit
	perModel map[string]Limit
	prices   map[string]Price
	clock    Clock
	logger   *slog.Logger
	models   map[string]*modelState
}

// New creates a Governor. Zero-valued options take defaults: a one minute
// window, the built-in price table, the wall clock and a discarding logger.
func New(opts Options) *Governor {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Prices == nil {
		opts.Prices = DefaultPrices()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	perModel := make(map[string]Limit, len(opts.PerModel))
	for m, l := range opts.PerModel {
		perModel[m] = l
	}
	return &Governor{
		window:   opts.Window,
		def:      opts.Default,
		perModel: perModel,
		prices:   opts.Prices,
		clock:    opts.Clock,
		logger:   opts.Logger,
		models:   make(map[string]*modelState),
	}
}

func (g *Governor) limitFor(model string) Limit {
	if l, ok := g.perModel[model]; ok {
		return l
	}
	return g.def
}

// state returns the model's ledger entry. Caller must hold g.mu.
func (g *Governor) state(model string) *modelState {
	st, ok := g.models[model]
	if !ok {
		st = &modelState{}
		g.models[model] = st
	}
	return st
}

// Acquire blocks until tokens for model fit the model's budget, then reserves
// them. A request larger than the whole token budget fails immediately with
// domain.ErrRateLimit since no amount of waiting admits it.
func (g *Governor) Acquire(ctx context.Context, model string, tokens int) error {
	if tokens < 0 {
		tokens = 0
	}
	lim := g.limitFor(model)
	if lim.TokensPerWindow > 0 && tokens > lim.TokensPerWindow {
		return domain.NewDomainError("Governor.Acquire", domain.ErrRateLimit,
			fmt.Sprintf("%d tokens exceed the %d token budget of %s", tokens, lim.TokensPerWindow, model))
	}

	for {
		g.mu.Lock()
		now := g.clock.Now()
		st := g.state(model)
		st.prune(now, g.window)
		wait := st.admitWait(now, tokens, lim, g.window)
		if wait == 0 {
			st.window = append(st.window, sample{at: now, tokens: tokens})
			st.usage.Reservations++
			st.usage.ReservedTokens += tokens
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		g.logger.Debug("rate budget exhausted, waiting",
			"model", model, "tokens", tokens, "wait", wait)

		select {
		case <-g.clock.After(wait):
		case <-ctx.Done():
			return domain.WrapOp("Governor.Acquire", ctx.Err())
		}
	}
}

// Record books a successful completion's actual usage and returns its cost.
func (g *Governor) Record(model string, tokensIn, tokensOut int) float64 {
	cost := g.CalculateCost(tokensIn, tokensOut, model)

	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state(model)
	st.usage.Requests++
	st.usage.InputTokens += tokensIn
	st.usage.OutputTokens += tokensOut
	st.usage.Cost += cost
	return cost
}

// Usage returns a copy of the ledger entry for model.
func (g *Governor) Usage(model string) ModelUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.models[model]; ok {
		return st.usage
	}
	return ModelUsage{}
}

// WindowTokens returns the tokens currently counted against model's window.
func (g *Governor) WindowTokens(model string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.models[model]
	if !ok {
		return 0
	}
	st.prune(g.clock.Now(), g.window)
	return st.windowTokens()
}

// Summary returns cumulative spend across all models.
func (g *Governor) Summary() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Summary{Models: make(map[string]ModelUsage, len(g.models))}
	for model, st := range g.models {
		s.Models[model] = st.usage
		s.TotalCost += st.usage.Cost
		s.TotalRequests += st.usage.Requests
		s.TotalTokens += st.usage.TotalTokens()
	}
	if s.TotalRequests > 0 {
		s.AverageCostPerRequest = s.TotalCost / float64(s.TotalRequests)
	}
	return s
}

// ModelNames returns the models with ledger entries, sorted.
func (s Summary) ModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for m := range s.Models {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

func errUnknownModel(model string) error {
	return domain.NewDomainError("Governor.EstimateMaxTokensForBudget", domain.ErrModel, "no price for model "+model)
}

func errBadRatio(r float64) error {
	return domain.NewDomainError("Governor.EstimateMaxTokensForBudget", domain.ErrValidation,
		fmt.Sprintf("output ratio %.2f outside [0, 1]", r))
}
