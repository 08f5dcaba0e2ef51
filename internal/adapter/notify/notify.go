// Package notify posts a one-line summary of each finished workflow run to
// chat channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
)

// DefaultTimeout bounds one notifier call.
const DefaultTimeout = 10 * time.Second

// FormatEvent renders a terminal workflow event. It reports false for
// events that should not be announced.
func FormatEvent(ev domain.Event) (string, bool) {
	var p domain.WorkflowEventPayload
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", false
		}
	}
	id := p.WorkflowID
	if id == "" {
		id = ev.WorkflowID
	}

	switch ev.Type {
	case domain.EventWorkflowCompleted:
		if p.PRURL != "" {
			return fmt.Sprintf("docsmith: %s run %s completed, pull request %s", p.WorkflowType, id, p.PRURL), true
		}
		return fmt.Sprintf("docsmith: %s run %s completed", p.WorkflowType, id), true
	case domain.EventWorkflowFailed:
		if p.Step != "" {
			return fmt.Sprintf("docsmith: %s run %s failed at %s: %s", p.WorkflowType, id, p.Step, p.Error), true
		}
		return fmt.Sprintf("docsmith: %s run %s failed: %s", p.WorkflowType, id, p.Error), true
	case domain.EventWorkflowCancelled:
		return fmt.Sprintf("docsmith: %s run %s cancelled", p.WorkflowType, id), true
	}
	return "", false
}

// Subscriber fans terminal workflow events out to notifiers.
type Subscriber struct {
	notifiers []domain.Notifier
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSubscriber creates a subscriber. With no notifiers it is a no-op.
func NewSubscriber(notifiers []domain.Notifier, logger *slog.Logger) *Subscriber {
	return &Subscriber{notifiers: notifiers, timeout: DefaultTimeout, logger: logger}
}

// Attach subscribes to the terminal workflow events on bus and returns a
// function that unsubscribes.
func (s *Subscriber) Attach(bus domain.EventBus) func() {
	if len(s.notifiers) == 0 {
		return func() {}
	}
	unsubs := []func(){
		bus.Subscribe(domain.EventWorkflowCompleted, s.Handle),
		bus.Subscribe(domain.EventWorkflowFailed, s.Handle),
		bus.Subscribe(domain.EventWorkflowCancelled, s.Handle),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handle implements domain.EventHandler. Notifier failures are logged.
func (s *Subscriber) Handle(ctx context.Context, ev domain.Event) {
	msg, ok := FormatEvent(ev)
	if !ok {
		return
	}
	for _, n := range s.notifiers {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		if err := n.Notify(nctx, msg); err != nil {
			s.logger.Warn("notify failed", "notifier", n.Name(), "error", err)
		} else {
			s.logger.Debug("notification sent", "notifier", n.Name(), "event", ev.Type)
		}
		cancel()
	}
}
