package multiagent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/logger"
)

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *recordingBus) Close() {}

func newTestRouter(t *testing.T, edges []Edge, handlers ...*stubHandler) (*Router, *recordingBus) {
	t.Helper()
	reg := NewRegistry(logger.Discard())
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	bus := &recordingBus{}
	return NewRouter(reg, edges, bus, logger.Discard()), bus
}

func TestDelegateAllowed(t *testing.T) {
	github := &stubHandler{role: "github", result: domain.TaskResult{"repo_path": "/tmp/x"}}
	r, bus := newTestRouter(t, []Edge{{From: "tech_lead", To: "github"}}, github)

	ctx := domain.ContextWithWorkflowID(context.Background(), "wf-1")
	res, err := r.Delegate(ctx, "tech_lead", "github", domain.Task{"type": "clone_repository"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", res["repo_path"])
	assert.True(t, github.Called())

	require.Len(t, bus.events, 1)
	ev := bus.events[0]
	assert.Equal(t, domain.EventAgentDelegated, ev.Type)
	assert.Equal(t, "wf-1", ev.WorkflowID)
	var p DelegationPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	assert.Equal(t, DelegationPayload{From: "tech_lead", To: "github", TaskType: "clone_repository"}, p)
}

func TestDelegateDisallowedNeverRunsReceiver(t *testing.T) {
	lead := &stubHandler{role: "tech_lead"}
	github := &stubHandler{role: "github"}
	r, bus := newTestRouter(t, []Edge{{From: "tech_lead", To: "github"}}, lead, github)

	_, err := r.Delegate(context.Background(), "github", "tech_lead", domain.Task{"type": "analyze_repository"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDelegation)
	assert.Contains(t, err.Error(), "github -> tech_lead")
	assert.False(t, lead.Called(), "receiver must not run")
	assert.Empty(t, bus.events)
}

func TestDelegateIsNotTransitive(t *testing.T) {
	reviewer := &stubHandler{role: "doc_reviewer"}
	r, _ := newTestRouter(t, []Edge{
		{From: "tech_lead", To: "code_analyst"},
		{From: "code_analyst", To: "doc_reviewer"},
	}, reviewer, &stubHandler{role: "code_analyst"})

	assert.False(t, r.CanDelegate("tech_lead", "doc_reviewer"))
	_, err := r.Delegate(context.Background(), "tech_lead", "doc_reviewer", domain.Task{"type": "review"})
	assert.ErrorIs(t, err, domain.ErrDelegation)
	assert.False(t, reviewer.Called())
}

func TestDelegateUnknownReceiver(t *testing.T) {
	r, _ := newTestRouter(t, []Edge{{From: "tech_lead", To: "ghost"}})

	_, err := r.Delegate(context.Background(), "tech_lead", "ghost", domain.Task{"type": "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrDelegation)
}

func TestDelegatePropagatesReceiverError(t *testing.T) {
	boom := errors.New("clone failed")
	r, _ := newTestRouter(t, []Edge{{From: "tech_lead", To: "github"}}, &stubHandler{role: "github", err: boom})

	_, err := r.Delegate(context.Background(), "tech_lead", "github", domain.Task{"type": "clone_repository"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "tech_lead -> github")
}

func TestEdgesIsACopy(t *testing.T) {
	r, _ := newTestRouter(t, []Edge{
		{From: "a", To: "b"},
		{From: "a", To: "b"},
		{From: "b", To: "c"},
	})

	edges := r.Edges()
	assert.Equal(t, []Edge{{From: "a", To: "b"}, {From: "b", To: "c"}}, edges)
	edges[0] = Edge{From: "x", To: "y"}
	assert.False(t, r.CanDelegate("x", "y"))
	assert.True(t, r.CanDelegate("a", "b"))
}

func TestRouterWithoutBus(t *testing.T) {
	reg := NewRegistry(logger.Discard())
	require.NoError(t, reg.Register(&stubHandler{role: "b"}))
	r := NewRouter(reg, []Edge{{From: "a", To: "b"}}, nil, logger.Discard())

	_, err := r.Delegate(context.Background(), "a", "b", domain.Task{"type": "x"})
	assert.NoError(t, err)
}
