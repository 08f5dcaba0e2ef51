package docsmith

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/logger"
)

// scriptedCompleter answers by the "Task: <name>" line each prompt starts with.
type scriptedCompleter struct {
	mu      sync.Mutex
	answers map[string]string
	calls   []string
}

func newScriptedCompleter() *scriptedCompleter {
	return &scriptedCompleter{answers: map[string]string{
		"describe_repository":  `{"description": "A demo service", "topics": ["go"]}`,
		"analyze_repository":   "```json\n{\"description\": \"Demo serves health checks\", \"features\": [\"Health endpoint\", \"Structured logs\"], \"has_api\": true, \"setup_instructions\": \"Install Go\", \"installation\": \"go install ./...\", \"usage\": \"demo serve\"}\n```",
		"analyze_architecture": `Here you go: {"overview": "A single HTTP server.", "components": [{"name": "server", "description": "Routes requests"}]}`,
		"review_documentation": `{"requires_changes": false, "suggestions": []}`,
		"pr_description":       "Updates the generated docs.",
		"process_feedback":     `{"changes": {"README.md": ["Explain the health endpoint"]}}`,
		"apply_changes":        "```markdown\n# Revised README\n```",
		"detect_framework":     `{"framework": "net/http", "version": "1.22"}`,
		"extract_endpoints":    `{"endpoints": [{"method": "GET", "path": "/health"}]}`,
		"generate_api_docs":    "# API\n\n## GET /health",
		"validate_api_docs":    `{"requires_changes": false, "suggestions": [], "results": [{"endpoint": "GET /health", "valid": true}]}`,
	}}
}

func (c *scriptedCompleter) set(name, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[name] = answer
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string, _ domain.ModelConfig, _ string) (string, error) {
	name := strings.TrimPrefix(strings.SplitN(prompt, "\n", 2)[0], "Task: ")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	answer, ok := c.answers[name]
	if !ok {
		return "", errors.New("no scripted answer for " + name)
	}
	return answer, nil
}

func (c *scriptedCompleter) called(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == name {
			n++
		}
	}
	return n
}

type fakeGit struct {
	t        *testing.T
	mu       sync.Mutex
	cloned   []string
	branches []string
	commits  []map[string]string
	pushes   []string
}

func (g *fakeGit) Clone(_ context.Context, url, branch string) (string, error) {
	dir := g.t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "server"), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "server", "server.go"), []byte("package server\n"), 0o644); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cloned = append(g.cloned, url+"@"+branch)
	return dir, nil
}

func (g *fakeGit) CreateBranch(_ context.Context, _, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.branches = append(g.branches, name)
	return nil
}

func (g *fakeGit) Commit(_ context.Context, _ string, files map[string]string, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commits = append(g.commits, files)
	return "abc123", nil
}

func (g *fakeGit) Push(_ context.Context, _, branch string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, branch)
	return nil
}

type fakePRs struct {
	mu     sync.Mutex
	inputs []domain.PullRequestInput
}

func (f *fakePRs) OpenPullRequest(_ context.Context, in domain.PullRequestInput) (*domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &domain.PullRequest{URL: "https://github.com/" + in.RepoRef + "/pull/7", Number: 7}, nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

type testEnv struct {
	pipeline  *Pipeline
	completer *scriptedCompleter
	git       *fakeGit
	prs       *fakePRs
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newTestEnv(t *testing.T, dryRun bool) *testEnv {
	t.Helper()
	env := &testEnv{
		completer: newScriptedCompleter(),
		git:       &fakeGit{t: t},
		prs:       &fakePRs{},
	}
	cfg := config.Defaults()
	p, err := New(Options{
		Git:          env.git,
		PullRequests: env.prs,
		Completer:    env.completer,
		Hosting:      cfg.Hosting,
		Scan:         cfg.Scan,
		DryRun:       dryRun,
		Logger:       logger.Discard(),
		Now:          func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	env.pipeline = p
	return env
}
