package workflow

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

// Coordinator defaults.
const (
	DefaultMaxRunning = 5
	DefaultRetainFor  = time.Hour
)

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Definitions []Definition
	MaxRunning  int
	RetainFor   time.Duration
	StepTimeout time.Duration
	Store       domain.RunStore
	Bus         domain.EventBus
	Logger      *slog.Logger
	Now         func() time.Time
}

// OptionsFromConfig maps the workflow section of the config.
func OptionsFromConfig(cfg config.WorkflowConfig) CoordinatorOptions {
	return CoordinatorOptions{
		MaxRunning:  cfg.MaxRunning,
		RetainFor:   cfg.RetainFor,
		StepTimeout: cfg.StepTimeout,
	}
}

type run struct {
	id        string
	typ       string
	wf        *Workflow
	startedAt time.Time
	done      chan struct{}
}

type retained struct {
	snap    domain.RunSnapshot
	expires time.Time
}

// Coordinator starts workflow runs in the background, tracks live runs and
// keeps terminal snapshots for a grace period.
type Coordinator struct {
	defs        map[string]Definition
	maxRunning  int
	retainFor   time.Duration
	stepTimeout time.Duration
	store       domain.RunStore
	bus         domain.EventBus
	logger      *slog.Logger
	now         func() time.Time

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.RWMutex
	closed    bool // set by Shutdown; no wg.Add after it
	runs      map[string]*run
	snapshots map[string]retained
	entropy   io.Reader
}

// NewCoordinator validates the definitions and creates a Coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	c := &Coordinator{
		defs:        make(map[string]Definition, len(opts.Definitions)),
		maxRunning:  opts.MaxRunning,
		retainFor:   opts.RetainFor,
		stepTimeout: opts.StepTimeout,
		store:       opts.Store,
		bus:         opts.Bus,
		logger:      opts.Logger,
		now:         opts.Now,
		runs:        make(map[string]*run),
		snapshots:   make(map[string]retained),
	}
	for _, d := range opts.Definitions {
		if err := d.Check(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.Type]; dup {
			return nil, domain.NewDomainError("NewCoordinator", domain.ErrConfig, "duplicate workflow type "+d.Type)
		}
		c.defs[d.Type] = d
	}
	if c.maxRunning <= 0 {
		c.maxRunning = DefaultMaxRunning
	}
	if c.retainFor <= 0 {
		c.retainFor = DefaultRetainFor
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.entropy = ulid.Monotonic(rand.Reader, 0)
	c.baseCtx, c.cancelAll = context.WithCancel(context.Background())
	return c, nil
}

// Types returns the registered workflow types, sorted.
func (c *Coordinator) Types() []string {
	types := make([]string, 0, len(c.defs))
	for t := range c.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// StartWorkflow starts a run of workflowType in the background and returns
// its id. The run is not bound to ctx; use Cancel or Shutdown to stop it.
func (c *Coordinator) StartWorkflow(ctx context.Context, workflowType string, params Params) (string, error) {
	def, ok := c.defs[workflowType]
	if !ok {
		return "", domain.NewDomainError("Coordinator.StartWorkflow", domain.ErrUnknownWorkflowType, workflowType)
	}
	now := c.now()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", domain.NewSubSystemError("workflow", "Coordinator.StartWorkflow", domain.ErrInvalidState, "coordinator is shut down")
	}
	c.pruneLocked(now)
	if len(c.runs) >= c.maxRunning {
		n := len(c.runs)
		c.mu.Unlock()
		return "", domain.NewSubSystemError("workflow", "Coordinator.StartWorkflow", domain.ErrLimitReached,
			fmt.Sprintf("%d/%d running", n, c.maxRunning))
	}
	id := workflowType + "-" + ulid.MustNew(ulid.Timestamp(now), c.entropy).String()
	r := &run{id: id, typ: workflowType, startedAt: now, done: make(chan struct{})}
	r.wf = New(def, Options{
		StepTimeout: c.stepTimeout,
		Logger:      c.logger.With("workflow_id", id),
		OnStep: func(ctx context.Context, step string, _, _ int) {
			c.emit(ctx, domain.EventWorkflowStep, domain.WorkflowEventPayload{
				WorkflowID:   id,
				WorkflowType: workflowType,
				Status:       domain.WorkflowRunning,
				Step:         step,
			})
		},
	})
	c.runs[id] = r
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("workflow started", "workflow_id", id, "workflow_type", workflowType)
	c.emit(ctx, domain.EventWorkflowStarted, domain.WorkflowEventPayload{
		WorkflowID:   id,
		WorkflowType: workflowType,
		Status:       domain.WorkflowRunning,
	})

	runCtx := domain.ContextWithWorkflowID(c.baseCtx, id)
	go c.execute(runCtx, r, params)
	return id, nil
}

func (c *Coordinator) execute(ctx context.Context, r *run, params Params) {
	defer c.wg.Done()

	result, err := r.wf.Run(ctx, params)

	snap := domain.RunSnapshot{
		ID:           r.id,
		WorkflowType: r.typ,
		Status:       result.Status,
		Progress:     r.wf.Progress(),
		Steps:        result.Results,
		StartedAt:    r.startedAt,
		FinishedAt:   c.now(),
	}
	if err != nil {
		snap.Error = err.Error()
	}

	c.mu.Lock()
	delete(c.runs, r.id)
	c.snapshots[r.id] = retained{snap: snap, expires: snap.FinishedAt.Add(c.retainFor)}
	c.mu.Unlock()
	close(r.done)

	if c.store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if serr := c.store.SaveRun(saveCtx, snap); serr != nil {
			c.logger.Warn("failed to persist run", "workflow_id", r.id, "error", serr)
		}
		cancel()
	}

	payload := domain.WorkflowEventPayload{
		WorkflowID:   r.id,
		WorkflowType: r.typ,
		Status:       snap.Status,
		Error:        snap.Error,
	}
	if last, ok := result.Get(lastStepName(r.wf)); ok {
		payload.PRURL = last.String("pr_url")
	}

	duration := snap.FinishedAt.Sub(snap.StartedAt)
	switch snap.Status {
	case domain.WorkflowCompleted:
		c.logger.Info("workflow completed", "workflow_id", r.id, "duration", duration)
		c.emit(ctx, domain.EventWorkflowCompleted, payload)
	case domain.WorkflowCancelled:
		c.logger.Info("workflow cancelled", "workflow_id", r.id, "step", snap.Progress.CurrentStep)
		c.emit(ctx, domain.EventWorkflowCancelled, payload)
	default:
		c.logger.Error("workflow failed",
			"workflow_id", r.id,
			"error", err,
			"error_code", string(domain.ErrorCodeOf(err)),
		)
		c.emit(ctx, domain.EventWorkflowFailed, payload)
	}
}

func lastStepName(w *Workflow) string {
	steps := w.def.Steps
	return steps[len(steps)-1].Name
}

// Status returns the progress of a live run, a retained snapshot, or a
// persisted run, in that order.
func (c *Coordinator) Status(id string) (domain.Progress, error) {
	if r, snap, ok := c.lookup(id); ok {
		if r != nil {
			return r.wf.Progress(), nil
		}
		return snap.Progress, nil
	}
	if snap := c.loadStored(id); snap != nil {
		return snap.Progress, nil
	}
	return domain.Progress{}, domain.NewDomainError("Coordinator.Status", domain.ErrUnknownWorkflowID, id)
}

// Result returns the results so far for a live run, or the final results of
// a finished one.
func (c *Coordinator) Result(id string) (Result, error) {
	if r, snap, ok := c.lookup(id); ok {
		if r != nil {
			return r.wf.Result(), nil
		}
		return Result{Status: snap.Status, Results: snap.Steps}, nil
	}
	if snap := c.loadStored(id); snap != nil {
		return Result{Status: snap.Status, Results: snap.Steps}, nil
	}
	return Result{}, domain.NewDomainError("Coordinator.Result", domain.ErrUnknownWorkflowID, id)
}

// Snapshot returns the terminal snapshot of a finished run.
func (c *Coordinator) Snapshot(id string) (domain.RunSnapshot, error) {
	if r, snap, ok := c.lookup(id); ok {
		if r != nil {
			return domain.RunSnapshot{}, domain.NewSubSystemError("workflow", "Coordinator.Snapshot", domain.ErrInvalidState, id+" is still running")
		}
		return snap, nil
	}
	if snap := c.loadStored(id); snap != nil {
		return *snap, nil
	}
	return domain.RunSnapshot{}, domain.NewDomainError("Coordinator.Snapshot", domain.ErrUnknownWorkflowID, id)
}

// Cancel asks a live run to stop before its next step.
func (c *Coordinator) Cancel(id string) error {
	r, _, ok := c.lookup(id)
	switch {
	case !ok:
		return domain.NewDomainError("Coordinator.Cancel", domain.ErrUnknownWorkflowID, id)
	case r == nil:
		return domain.NewSubSystemError("workflow", "Coordinator.Cancel", domain.ErrInvalidState, id+" already finished")
	}
	r.wf.Cancel()
	c.logger.Info("workflow cancellation requested", "workflow_id", id)
	return nil
}

// Wait blocks until the run is terminal or ctx ends, then returns its result.
func (c *Coordinator) Wait(ctx context.Context, id string) (Result, error) {
	r, _, ok := c.lookup(id)
	if ok && r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return c.Result(id)
}

// Running returns the ids of live runs, sorted.
func (c *Coordinator) Running() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.runs))
	for id := range c.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown cancels every live run and waits for their goroutines or ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, r := range c.runs {
		r.wf.Cancel()
	}
	c.mu.Unlock()
	c.cancelAll()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) lookup(id string) (*run, domain.RunSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.runs[id]; ok {
		return r, domain.RunSnapshot{}, true
	}
	if s, ok := c.snapshots[id]; ok && c.now().Before(s.expires) {
		return nil, s.snap, true
	}
	return nil, domain.RunSnapshot{}, false
}

func (c *Coordinator) loadStored(id string) *domain.RunSnapshot {
	if c.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.store.GetRun(ctx, id)
	if err != nil {
		return nil
	}
	return snap
}

func (c *Coordinator) pruneLocked(now time.Time) {
	for id, s := range c.snapshots {
		if !now.Before(s.expires) {
			delete(c.snapshots, id)
		}
	}
}

func (c *Coordinator) emit(ctx context.Context, typ domain.EventType, payload domain.WorkflowEventPayload) {
	if c.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.bus.Publish(ctx, domain.Event{
		Type:       typ,
		Timestamp:  time.Now(),
		WorkflowID: payload.WorkflowID,
		Payload:    data,
	})
}
