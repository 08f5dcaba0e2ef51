package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/tracer"
)

// Edge permits From to delegate tasks to To.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

func (e Edge) String() string { return e.From + " -> " + e.To }

// DelegationPayload is the payload of agent.delegated events.
type DelegationPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	TaskType string `json:"task_type"`
	Step     string `json:"step,omitempty"`
}

// Router routes tasks between roles along a fixed set of edges. The edge set
// is exact: no wildcards, no transitive reachability.
type Router struct {
	edges    map[Edge]struct{}
	order    []Edge
	registry *Registry
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewRouter creates a Router over registry with the given edges. Duplicate
// edges are collapsed. bus may be nil.
func NewRouter(registry *Registry, edges []Edge, bus domain.EventBus, logger *slog.Logger) *Router {
	r := &Router{
		edges:    make(map[Edge]struct{}, len(edges)),
		registry: registry,
		bus:      bus,
		logger:   logger,
	}
	for _, e := range edges {
		if _, dup := r.edges[e]; dup {
			continue
		}
		r.edges[e] = struct{}{}
		r.order = append(r.order, e)
	}
	return r
}

// CanDelegate reports whether sender may hand tasks to receiver.
func (r *Router) CanDelegate(sender, receiver string) bool {
	_, ok := r.edges[Edge{From: sender, To: receiver}]
	return ok
}

// Edges returns a copy of the edge set in construction order.
func (r *Router) Edges() []Edge {
	out := make([]Edge, len(r.order))
	copy(out, r.order)
	return out
}

// Delegate hands task from sender to receiver. A pair outside the edge set
// fails with ErrDelegation before the receiver is looked up or run.
func (r *Router) Delegate(ctx context.Context, sender, receiver string, task domain.Task) (domain.TaskResult, error) {
	edge := Edge{From: sender, To: receiver}
	if !r.CanDelegate(sender, receiver) {
		r.logger.Warn("delegation refused", "from", sender, "to", receiver)
		return nil, domain.NewDomainError("Router.Delegate", domain.ErrDelegation, edge.String())
	}

	h, err := r.registry.Get(receiver)
	if err != nil {
		return nil, err
	}

	taskType, _ := task.Type()
	ctx, span := tracer.StartSpan(ctx, "router.delegate",
		trace.WithAttributes(
			tracer.StringAttr("delegation.from", sender),
			tracer.StringAttr("delegation.to", receiver),
			tracer.StringAttr("task.type", taskType),
		),
	)
	defer span.End()

	r.publish(ctx, DelegationPayload{
		From:     sender,
		To:       receiver,
		TaskType: taskType,
		Step:     domain.StepFromContext(ctx),
	})
	r.logger.Info("delegating",
		"from", sender,
		"to", receiver,
		"task_type", taskType,
		"workflow_id", domain.WorkflowIDFromContext(ctx),
	)

	result, err := h.HandleTask(ctx, task)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("delegate %s: %w", edge, err)
	}
	tracer.SetOK(span)
	return result, nil
}

func (r *Router) publish(ctx context.Context, p DelegationPayload) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(p)
	if err != nil {
		r.logger.Warn("failed to marshal delegation event", "error", err)
		return
	}
	r.bus.Publish(ctx, domain.Event{
		Type:       domain.EventAgentDelegated,
		Timestamp:  time.Now(),
		WorkflowID: domain.WorkflowIDFromContext(ctx),
		Payload:    payload,
	})
}
