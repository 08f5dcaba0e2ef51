// Package agent implements role agents: a table of task handlers around a
// model configuration, a prompt library and the completion gateway.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
)

// TaskHandler handles one task type. The agent is passed in so handlers can
// render prompts, call the model and delegate.
type TaskHandler func(ctx context.Context, a *Agent, task domain.Task) (domain.TaskResult, error)

// PreProcess may rewrite a task before its handler runs.
type PreProcess func(ctx context.Context, task domain.Task) (domain.Task, error)

// PostProcess may rewrite a handler's result before it is recorded.
type PostProcess func(ctx context.Context, task domain.Task, result domain.TaskResult) (domain.TaskResult, error)

// Completer produces completion text. *gateway.Gateway satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string, cfg domain.ModelConfig, cacheKey string) (string, error)
}

// Delegator hands a task to another role. *multiagent.Router satisfies it.
type Delegator interface {
	Delegate(ctx context.Context, sender, receiver string, task domain.Task) (domain.TaskResult, error)
}

// HistoryEntry records one handled task.
type HistoryEntry struct {
	Task      domain.Task       `json:"task"`
	Result    domain.TaskResult `json:"result"`
	HandledAt time.Time         `json:"handled_at"`
}

// Options configures an Agent. Role and Handlers are required.
type Options struct {
	Role      string
	Model     domain.ModelConfig
	Handlers  map[string]TaskHandler
	Pre       PreProcess
	Post      PostProcess
	Completer Completer
	Delegator Delegator
	Prompts   *Prompts
	Bus       domain.EventBus
	Logger    *slog.Logger
}

// Agent is a role with task handlers, mutable state and a task history.
type Agent struct {
	role      string
	model     domain.ModelConfig
	handlers  map[string]TaskHandler
	pre       PreProcess
	post      PostProcess
	completer Completer
	delegator Delegator
	prompts   *Prompts
	bus       domain.EventBus
	logger    *slog.Logger

	mu      sync.Mutex
	state   map[string]any
	history []HistoryEntry
}

// New creates an Agent.
func New(opts Options) *Agent {
	a := &Agent{
		role:      opts.Role,
		model:     opts.Model,
		handlers:  maps.Clone(opts.Handlers),
		pre:       opts.Pre,
		post:      opts.Post,
		completer: opts.Completer,
		delegator: opts.Delegator,
		prompts:   opts.Prompts,
		bus:       opts.Bus,
		logger:    opts.Logger,
		state:     make(map[string]any),
	}
	if a.handlers == nil {
		a.handlers = make(map[string]TaskHandler)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("agent", a.role)
	return a
}

// Role returns the agent's role name.
func (a *Agent) Role() string { return a.role }

// Model returns the agent's model configuration.
func (a *Agent) Model() domain.ModelConfig { return a.model }

// Logger returns the agent's role-scoped logger.
func (a *Agent) Logger() *slog.Logger { return a.logger }

// Capabilities returns the task types this agent handles, sorted.
func (a *Agent) Capabilities() []string {
	return slices.Sorted(maps.Keys(a.handlers))
}

// HandleTask validates task, dispatches it to the handler for its type and
// records the outcome in the history.
func (a *Agent) HandleTask(ctx context.Context, task domain.Task) (domain.TaskResult, error) {
	if task == nil {
		return nil, domain.NewDomainError("Agent.HandleTask", domain.ErrValidation, a.role+": task is nil")
	}
	taskType, ok := task.Type()
	if !ok {
		return nil, domain.NewDomainError("Agent.HandleTask", domain.ErrValidation, a.role+": task has no string \"type\"")
	}
	handler, ok := a.handlers[taskType]
	if !ok {
		return nil, domain.NewDomainError("Agent.HandleTask", domain.ErrUnknownTaskType, fmt.Sprintf("%s: %q", a.role, taskType))
	}

	ctx, span := tracer.StartSpan(ctx, "agent.handle_task",
		trace.WithAttributes(
			tracer.StringAttr("agent.role", a.role),
			tracer.StringAttr("task.type", taskType),
		),
	)
	defer span.End()

	var err error
	if a.pre != nil {
		if task, err = a.pre(ctx, task); err != nil {
			return nil, a.fail(ctx, span, taskType, err)
		}
	}

	start := time.Now()
	result, err := handler(ctx, a, task)
	if err != nil {
		return nil, a.fail(ctx, span, taskType, err)
	}
	if result == nil {
		result = domain.TaskResult{}
	}

	if a.post != nil {
		if result, err = a.post(ctx, task, result); err != nil {
			return nil, a.fail(ctx, span, taskType, err)
		}
	}

	a.mu.Lock()
	a.history = append(a.history, HistoryEntry{Task: task.Clone(), Result: result.Clone(), HandledAt: time.Now()})
	a.mu.Unlock()

	tracer.SetOK(span)
	a.logger.Debug("task handled", "task_type", taskType, "duration", time.Since(start))
	return result, nil
}

func (a *Agent) fail(ctx context.Context, span trace.Span, taskType string, err error) error {
	tracer.RecordError(span, err)
	a.logger.Warn("task failed",
		"task_type", taskType,
		"error", err,
		"error_code", string(domain.ErrorCodeOf(err)),
	)
	if a.bus != nil {
		payload, _ := json.Marshal(map[string]string{
			"role":      a.role,
			"task_type": taskType,
			"error":     err.Error(),
		})
		a.bus.Publish(ctx, domain.Event{
			Type:       domain.EventAgentTaskFailed,
			WorkflowID: domain.WorkflowIDFromContext(ctx),
			Payload:    payload,
		})
	}
	return fmt.Errorf("%s %s: %w", a.role, taskType, err)
}

// GetCompletion renders the (promptRole, promptName) template with vars and
// asks the completion gateway for an answer using this agent's model.
func (a *Agent) GetCompletion(ctx context.Context, promptRole, promptName string, vars map[string]any) (string, error) {
	if a.prompts == nil {
		return "", domain.NewSubSystemError("prompt", "Agent.GetCompletion", domain.ErrNotFound, "no prompt library")
	}
	prompt, err := a.prompts.Render(promptRole, promptName, vars)
	if err != nil {
		return "", err
	}
	return a.Complete(ctx, prompt)
}

// Complete sends a raw prompt to the gateway with this agent's model.
func (a *Agent) Complete(ctx context.Context, prompt string) (string, error) {
	if a.completer == nil {
		return "", domain.NewDomainError("Agent.Complete", domain.ErrConfig, a.role+": no completer")
	}
	return a.completer.Complete(ctx, prompt, a.model, cacheKey(a.model, prompt))
}

// Delegate hands task to receiver through the delegation graph, with this
// agent as sender.
func (a *Agent) Delegate(ctx context.Context, receiver string, task domain.Task) (domain.TaskResult, error) {
	if a.delegator == nil {
		return nil, domain.NewDomainError("Agent.Delegate", domain.ErrDelegation, a.role+" -> "+receiver+": no router")
	}
	return a.delegator.Delegate(ctx, a.role, receiver, task)
}

// State returns a copy of the agent's state.
func (a *Agent) State() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.state)
}

// UpdateState merges updates into the agent's state.
func (a *Agent) UpdateState(updates map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	maps.Copy(a.state, updates)
}

// ClearState empties the agent's state.
func (a *Agent) ClearState() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.state)
}

// History returns a copy of the handled-task history, oldest first.
func (a *Agent) History() []HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]HistoryEntry, len(a.history))
	for i, e := range a.history {
		out[i] = HistoryEntry{Task: e.Task.Clone(), Result: e.Result.Clone(), HandledAt: e.HandledAt}
	}
	return out
}

// ClearHistory empties the handled-task history.
func (a *Agent) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

// cacheKey identifies a completion by model settings and prompt text.
func cacheKey(cfg domain.ModelConfig, prompt string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%g\x00%d\x00%g\x00%g\x00", cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.FrequencyPenalty, cfg.PresencePenalty)
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}
