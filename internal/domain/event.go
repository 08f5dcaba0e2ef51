package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentDelegated    EventType = "agent.delegated"
	EventAgentTaskFailed   EventType = "agent.task.failed"
	EventCompletionDone    EventType = "completion.done"
	EventCompletionRetried EventType = "completion.retried"

	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowStep      EventType = "workflow.step"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventWorkflowCancelled EventType = "workflow.cancelled"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type       EventType       `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// WorkflowEventPayload is the payload of workflow.* events.
type WorkflowEventPayload struct {
	WorkflowID   string         `json:"workflow_id"`
	WorkflowType string         `json:"workflow_type"`
	Status       WorkflowStatus `json:"status"`
	Step         string         `json:"step,omitempty"`
	Error        string         `json:"error,omitempty"`
	PRURL        string         `json:"pr_url,omitempty"`
}
