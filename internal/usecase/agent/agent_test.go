package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/logger"
)

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	keys    []string
	cfgs    []domain.ModelConfig
	answer  string
	err     error
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, cfg domain.ModelConfig, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.keys = append(f.keys, key)
	f.cfgs = append(f.cfgs, cfg)
	return f.answer, f.err
}

type fakeDelegator struct {
	sender, receiver string
	task             domain.Task
}

func (f *fakeDelegator) Delegate(_ context.Context, sender, receiver string, task domain.Task) (domain.TaskResult, error) {
	f.sender, f.receiver, f.task = sender, receiver, task
	return domain.TaskResult{"delegated": true}, nil
}

func echoHandler(_ context.Context, _ *Agent, task domain.Task) (domain.TaskResult, error) {
	return domain.TaskResult{"echo": task.String("value")}, nil
}

func newTestAgent(opts Options) *Agent {
	if opts.Role == "" {
		opts.Role = "writer"
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return New(opts)
}

func TestHandleTaskDispatches(t *testing.T) {
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{"echo": echoHandler}})

	res, err := a.HandleTask(context.Background(), domain.Task{"type": "echo", "value": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res["echo"])

	h := a.History()
	require.Len(t, h, 1)
	assert.Equal(t, "echo", h[0].Task["type"])
	assert.Equal(t, "hi", h[0].Result["echo"])
	assert.False(t, h[0].HandledAt.IsZero())
}

func TestHistoryIsIsolatedFromCallers(t *testing.T) {
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{"echo": echoHandler}})

	task := domain.Task{"type": "echo", "value": "hi"}
	res, err := a.HandleTask(context.Background(), task)
	require.NoError(t, err)

	res["documentation"] = "added by caller"
	task["value"] = "changed"
	h := a.History()
	h[0].Result["echo"] = "changed"

	h = a.History()
	require.Len(t, h, 1)
	assert.Equal(t, domain.TaskResult{"echo": "hi"}, h[0].Result)
	assert.Equal(t, "hi", h[0].Task["value"])
}

func TestHandleTaskRejectsMissingType(t *testing.T) {
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{"echo": echoHandler}})

	for name, task := range map[string]domain.Task{
		"nil":        nil,
		"empty":      {},
		"non-string": {"type": 42},
		"blank":      {"type": ""},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.HandleTask(context.Background(), task)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Empty(t, a.History())
}

func TestHandleTaskUnknownType(t *testing.T) {
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{"echo": echoHandler}})

	_, err := a.HandleTask(context.Background(), domain.Task{"type": "fly"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownTaskType)
	assert.Contains(t, err.Error(), `"fly"`)
}

func TestHandleTaskHooks(t *testing.T) {
	var order []string
	a := newTestAgent(Options{
		Handlers: map[string]TaskHandler{
			"echo": func(ctx context.Context, a *Agent, task domain.Task) (domain.TaskResult, error) {
				order = append(order, "handler")
				return echoHandler(ctx, a, task)
			},
		},
		Pre: func(_ context.Context, task domain.Task) (domain.Task, error) {
			order = append(order, "pre")
			task = task.Clone()
			task["value"] = "rewritten"
			return task, nil
		},
		Post: func(_ context.Context, _ domain.Task, res domain.TaskResult) (domain.TaskResult, error) {
			order = append(order, "post")
			res["post"] = true
			return res, nil
		},
	})

	res, err := a.HandleTask(context.Background(), domain.Task{"type": "echo", "value": "orig"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "handler", "post"}, order)
	assert.Equal(t, "rewritten", res["echo"])
	assert.Equal(t, true, res["post"])
}

func TestHandleTaskHandlerError(t *testing.T) {
	boom := errors.New("boom")
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{
		"fail": func(context.Context, *Agent, domain.Task) (domain.TaskResult, error) { return nil, boom },
	}})

	_, err := a.HandleTask(context.Background(), domain.Task{"type": "fail"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "writer fail")
	assert.Empty(t, a.History())
}

func TestHandleTaskNilResultBecomesEmpty(t *testing.T) {
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{
		"noop": func(context.Context, *Agent, domain.Task) (domain.TaskResult, error) { return nil, nil },
	}})

	res, err := a.HandleTask(context.Background(), domain.Task{"type": "noop"})
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestStateAndHistory(t *testing.T) {
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{"echo": echoHandler}})

	a.UpdateState(map[string]any{"repo": "x"})
	a.UpdateState(map[string]any{"branch": "main"})
	st := a.State()
	assert.Equal(t, map[string]any{"repo": "x", "branch": "main"}, st)

	st["repo"] = "mutated"
	assert.Equal(t, "x", a.State()["repo"], "State returns a copy")

	a.ClearState()
	assert.Empty(t, a.State())

	_, err := a.HandleTask(context.Background(), domain.Task{"type": "echo"})
	require.NoError(t, err)
	assert.Len(t, a.History(), 1)
	a.ClearHistory()
	assert.Empty(t, a.History())
}

func TestCapabilitiesSorted(t *testing.T) {
	a := newTestAgent(Options{Handlers: map[string]TaskHandler{
		"review":   echoHandler,
		"analyze":  echoHandler,
		"document": echoHandler,
	}})
	assert.Equal(t, []string{"analyze", "document", "review"}, a.Capabilities())
}

func TestGetCompletion(t *testing.T) {
	prompts, err := NewPrompts(map[string]map[string]string{
		"writer": {"summary": "Summarize {{.repo}} in {{.words}} words."},
	})
	require.NoError(t, err)

	fc := &fakeCompleter{answer: "A tool."}
	cfg := domain.ModelConfig{Model: "gpt-4", MaxTokens: 4000, Temperature: 0.3}
	a := newTestAgent(Options{Model: cfg, Completer: fc, Prompts: prompts})

	text, err := a.GetCompletion(context.Background(), "writer", "summary", map[string]any{"repo": "doc-smith", "words": 10})
	require.NoError(t, err)
	assert.Equal(t, "A tool.", text)
	require.Len(t, fc.prompts, 1)
	assert.Equal(t, "Summarize doc-smith in 10 words.", fc.prompts[0])
	assert.Equal(t, cfg, fc.cfgs[0])
	assert.Len(t, fc.keys[0], 64)

	_, err = a.GetCompletion(context.Background(), "writer", "summary", map[string]any{"repo": "doc-smith", "words": 10})
	require.NoError(t, err)
	assert.Equal(t, fc.keys[0], fc.keys[1], "same prompt and model give the same cache key")
}

func TestGetCompletionTemplateErrors(t *testing.T) {
	prompts, err := NewPrompts(map[string]map[string]string{
		"writer": {"summary": "Summarize {{.repo}}."},
	})
	require.NoError(t, err)
	fc := &fakeCompleter{}
	a := newTestAgent(Options{Completer: fc, Prompts: prompts})

	_, err = a.GetCompletion(context.Background(), "writer", "summary", nil)
	assert.ErrorIs(t, err, domain.ErrTemplate)

	_, err = a.GetCompletion(context.Background(), "writer", "missing", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodePromptNotFound, domain.ErrorCodeOf(err))

	assert.Empty(t, fc.prompts, "no completion on template failure")
}

func TestNewPromptsRejectsBadTemplate(t *testing.T) {
	_, err := NewPrompts(map[string]map[string]string{"writer": {"bad": "{{.repo"}})
	assert.ErrorIs(t, err, domain.ErrTemplate)
}

func TestPromptNames(t *testing.T) {
	p, err := NewPrompts(map[string]map[string]string{"writer": {"b": "x", "a": "y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.Names("writer"))
	assert.Empty(t, p.Names("nobody"))
}

func TestDelegate(t *testing.T) {
	d := &fakeDelegator{}
	a := newTestAgent(Options{Role: "tech_lead", Delegator: d})

	res, err := a.Delegate(context.Background(), "github", domain.Task{"type": "clone_repository"})
	require.NoError(t, err)
	assert.Equal(t, true, res["delegated"])
	assert.Equal(t, "tech_lead", d.sender)
	assert.Equal(t, "github", d.receiver)

	lone := newTestAgent(Options{Role: "loner"})
	_, err = lone.Delegate(context.Background(), "github", domain.Task{"type": "x"})
	assert.ErrorIs(t, err, domain.ErrDelegation)
}

func TestCompleteWithoutCompleter(t *testing.T) {
	a := newTestAgent(Options{})
	_, err := a.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrConfig)
}
