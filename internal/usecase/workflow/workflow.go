// Package workflow runs ordered step pipelines and coordinates concurrent runs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
)

// PreviousStepKey holds the previous step's result in Params.
const PreviousStepKey = "previous_step"

// Params is the mutable parameter map threaded through a run.
type Params map[string]any

// StepFunc executes one step.
type StepFunc func(ctx context.Context, params Params) (domain.TaskResult, error)

// Step is one stage of a workflow definition.
type Step struct {
	Name    string
	Handler StepFunc
	// RequiredKeys must all be present in the handler's result.
	RequiredKeys []string
	// Validate rejects an empty result even when RequiredKeys is empty.
	Validate bool
	// Timeout bounds the handler; zero uses the run default.
	Timeout time.Duration
}

func (s Step) validates() bool { return s.Validate || len(s.RequiredKeys) > 0 }

// Definition is a named, ordered list of steps.
type Definition struct {
	Type        string
	Description string
	Steps       []Step
}

// Check reports structural problems: empty type, no steps, unnamed or
// duplicate steps, missing handlers.
func (d Definition) Check() error {
	if d.Type == "" {
		return domain.NewDomainError("Definition.Check", domain.ErrConfig, "workflow type is empty")
	}
	if len(d.Steps) == 0 {
		return domain.NewDomainError("Definition.Check", domain.ErrConfig, d.Type+": no steps")
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		switch {
		case s.Name == "":
			return domain.NewDomainError("Definition.Check", domain.ErrConfig, fmt.Sprintf("%s: step %d has no name", d.Type, i))
		case seen[s.Name]:
			return domain.NewDomainError("Definition.Check", domain.ErrConfig, fmt.Sprintf("%s: duplicate step %q", d.Type, s.Name))
		case s.Handler == nil:
			return domain.NewDomainError("Definition.Check", domain.ErrConfig, fmt.Sprintf("%s: step %q has no handler", d.Type, s.Name))
		}
		seen[s.Name] = true
	}
	return nil
}

// Result is the outcome of a run: final status and step results in
// execution order.
type Result struct {
	Status  domain.WorkflowStatus `json:"status"`
	Results []domain.StepOutput   `json:"results"`
}

// Get returns the named step's result.
func (r Result) Get(step string) (domain.TaskResult, bool) {
	for _, o := range r.Results {
		if o.Name == step {
			return o.Result, true
		}
	}
	return nil, false
}

// Options tunes a Workflow.
type Options struct {
	StepTimeout time.Duration
	Logger      *slog.Logger
	// OnStep is called as each step starts.
	OnStep func(ctx context.Context, step string, index, total int)
}

// Workflow is a single-use state machine over a Definition's steps.
type Workflow struct {
	def         Definition
	stepTimeout time.Duration
	onStep      func(ctx context.Context, step string, index, total int)
	logger      *slog.Logger

	cancelled atomic.Bool

	mu       sync.RWMutex
	status   domain.WorkflowStatus
	current  int
	stepName string
	results  []domain.StepOutput
	err      error
}

// New creates a pending Workflow for def.
func New(def Definition, opts Options) *Workflow {
	w := &Workflow{
		def:         def,
		stepTimeout: opts.StepTimeout,
		onStep:      opts.OnStep,
		logger:      opts.Logger,
		status:      domain.WorkflowPending,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Type returns the workflow type.
func (w *Workflow) Type() string { return w.def.Type }

// Run executes every step in order. It may be called once; later calls fail
// with ErrInvalidState. On failure or cancellation the partial Result is
// returned with the error.
func (w *Workflow) Run(ctx context.Context, params Params) (Result, error) {
	w.mu.Lock()
	if w.status != domain.WorkflowPending {
		status := w.status
		w.mu.Unlock()
		return Result{Status: status}, domain.NewSubSystemError("workflow", "Workflow.Run", domain.ErrInvalidState, "already "+string(status))
	}
	w.status = domain.WorkflowRunning
	w.mu.Unlock()

	ctx, span := tracer.StartSpan(ctx, "workflow.run",
		trace.WithAttributes(tracer.StringAttr("workflow.type", w.def.Type)),
	)
	defer span.End()

	params = maps.Clone(params)
	if params == nil {
		params = Params{}
	}

	total := len(w.def.Steps)
	for i, step := range w.def.Steps {
		if w.cancelled.Load() || ctx.Err() != nil {
			err := domain.NewSubSystemError("workflow", "Workflow.Run", domain.ErrCancelled, "before step "+step.Name)
			tracer.RecordError(span, err)
			return w.finish(domain.WorkflowCancelled, err)
		}

		w.mu.Lock()
		w.current = i
		w.stepName = step.Name
		w.mu.Unlock()
		if w.onStep != nil {
			w.onStep(ctx, step.Name, i, total)
		}

		result, err := w.runStep(ctx, step, params)
		if err != nil {
			tracer.RecordError(span, err)
			if ctx.Err() != nil {
				return w.finish(domain.WorkflowCancelled, domain.NewSubSystemError("workflow", "Workflow.Run", domain.ErrCancelled, fmt.Sprintf("during step %s: %v", step.Name, err)))
			}
			return w.finish(domain.WorkflowFailed, err)
		}

		if step.validates() {
			missing := result.Missing(step.RequiredKeys)
			if len(missing) > 0 || (len(step.RequiredKeys) == 0 && len(result) == 0) {
				err := &domain.StepValidationError{Step: step.Name, Missing: missing}
				tracer.RecordError(span, err)
				return w.finish(domain.WorkflowFailed, err)
			}
		}

		w.mu.Lock()
		w.results = append(w.results, domain.StepOutput{Name: step.Name, Result: result})
		w.current = i + 1
		w.mu.Unlock()
		params[PreviousStepKey] = result
	}

	tracer.SetOK(span)
	return w.finish(domain.WorkflowCompleted, nil)
}

func (w *Workflow) runStep(ctx context.Context, step Step, params Params) (result domain.TaskResult, err error) {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = w.stepTimeout
	}
	stepCtx := domain.ContextWithStep(ctx, step.Name)
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(stepCtx, timeout)
		defer cancel()
	}

	stepCtx, span := tracer.StartSpan(stepCtx, "workflow.step",
		trace.WithAttributes(tracer.StringAttr("workflow.step", step.Name)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %q panicked: %v", step.Name, r)
		}
		if err != nil {
			tracer.RecordError(span, err)
		}
	}()

	start := time.Now()
	result, err = step.Handler(stepCtx, params)
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &domain.DomainError{
				Op:        "Workflow.Run",
				Err:       domain.ErrTimeout,
				Detail:    fmt.Sprintf("step %s after %s: %v", step.Name, timeout, err),
				SubSystem: "workflow",
			}
		}
		return nil, fmt.Errorf("step %s: %w", step.Name, err)
	}
	if result == nil {
		result = domain.TaskResult{}
	}
	w.logger.Debug("step finished", "step", step.Name, "duration", time.Since(start))
	tracer.SetOK(span)
	return result, nil
}

func (w *Workflow) finish(status domain.WorkflowStatus, err error) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.err = err
	w.stepName = ""
	return Result{Status: status, Results: cloneOutputs(w.results)}, err
}

// Cancel asks the run to stop before its next step.
func (w *Workflow) Cancel() { w.cancelled.Store(true) }

// Progress returns a consistent view of the run; safe during Run.
func (w *Workflow) Progress() domain.Progress {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, len(w.results))
	for i, o := range w.results {
		names[i] = o.Name
	}
	return domain.Progress{
		Status:         w.status,
		CurrentStep:    w.current,
		TotalSteps:     len(w.def.Steps),
		CompletedSteps: names,
		StepName:       w.stepName,
	}
}

// Result returns the status and results so far.
func (w *Workflow) Result() Result {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Result{Status: w.status, Results: cloneOutputs(w.results)}
}

// Err returns the error that ended the run, if any.
func (w *Workflow) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

func cloneOutputs(in []domain.StepOutput) []domain.StepOutput {
	if in == nil {
		return []domain.StepOutput{}
	}
	out := make([]domain.StepOutput, len(in))
	copy(out, in)
	return out
}
