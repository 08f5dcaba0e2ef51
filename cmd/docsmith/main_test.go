package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/infra/logger"
	"github.com/Travbz/doc-smith/internal/usecase/docsmith"
	"github.com/Travbz/doc-smith/internal/usecase/workflow"
)

func TestParseArgs(t *testing.T) {
	t.Setenv("DOCSMITH_CONFIG", "")

	args, err := parseArgs([]string{"acme/widgets"})
	require.NoError(t, err)
	assert.Equal(t, cliArgs{
		Repo:       "acme/widgets",
		Workflow:   docsmith.WorkflowDocumentation,
		ConfigPath: "docsmith.yaml",
	}, args)

	args, err = parseArgs([]string{
		"--branch", "develop", "https://github.com/acme/widgets",
		"--workflow=api_documentation", "--config", "/etc/docsmith.yaml", "--dry-run", "--progress",
	})
	require.NoError(t, err)
	assert.Equal(t, cliArgs{
		Repo:       "https://github.com/acme/widgets",
		Branch:     "develop",
		Workflow:   docsmith.WorkflowAPIDocumentation,
		ConfigPath: "/etc/docsmith.yaml",
		DryRun:     true,
		Progress:   true,
	}, args)
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"no repo", []string{"--dry-run"}, "missing repository"},
		{"two repos", []string{"a/b", "c/d"}, "unexpected argument"},
		{"unknown flag", []string{"a/b", "--verbose"}, "unknown flag"},
		{"missing value", []string{"a/b", "--branch"}, "needs a value"},
		{"flag as value", []string{"a/b", "--branch", "--dry-run"}, "needs a value"},
		{"bad workflow", []string{"a/b", "--workflow", "changelog"}, "unknown workflow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.argv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv("DOCSMITH_CONFIG", "/tmp/x.yaml")
	assert.Equal(t, "/tmp/x.yaml", configPath(nil))
	assert.Equal(t, "/y.yaml", configPath([]string{"--config=/y.yaml"}))
}

func TestCheckCredentials(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""
	cfg.Hosting.Token = ""

	assert.ErrorIs(t, checkCredentials(cfg, true), domain.ErrConfig)

	cfg.LLM.APIKey = "sk-test"
	assert.NoError(t, checkCredentials(cfg, true))
	assert.ErrorIs(t, checkCredentials(cfg, false), domain.ErrConfig)

	cfg.Hosting.Token = "ghp_test"
	assert.NoError(t, checkCredentials(cfg, false))
}

func TestCreateProvider(t *testing.T) {
	p, err := createProvider(config.LLMConfig{Provider: "openai", APIKey: "k"}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = createProvider(config.LLMConfig{Provider: "llama"}, logger.Discard())
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestBuildApp(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.LLM.APIKey = "sk-test"
	cfg.Hosting.CloneDir = dir + "/repos"
	cfg.Cache.Dir = dir + "/cache"
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = dir + "/store/runs.db"

	a, err := buildApp(cfg, true, logger.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{docsmith.WorkflowAPIDocumentation, docsmith.WorkflowDocumentation}, a.coord.Types())
	assert.Equal(t, []string{
		"prepare_repository", "analyze_code", "generate_documentation", "review_documentation", "create_pull_request",
	}, a.stepNames(docsmith.WorkflowDocumentation))
	assert.Nil(t, a.stepNames("unknown"))

	_, err = a.coord.StartWorkflow(context.Background(), "changelog", workflow.Params{})
	assert.ErrorIs(t, err, domain.ErrUnknownWorkflowType)
}

func TestBuildNotifiersWithoutTags(t *testing.T) {
	n, err := buildNotifiers(config.NotifyConfig{}, logger.Discard())
	require.NoError(t, err)
	assert.Empty(t, n)
}

func TestDocumentsOf(t *testing.T) {
	res := workflow.Result{Results: []domain.StepOutput{
		{Name: "generate", Result: domain.TaskResult{"documentation": map[string]string{"README.md": "old"}}},
		{Name: "review", Result: domain.TaskResult{"documentation": map[string]any{"README.md": "new", "bad": 1}}},
		{Name: "pr", Result: domain.TaskResult{"pr_url": "u"}},
	}}
	assert.Equal(t, map[string]string{"README.md": "new"}, documentsOf(res))
	assert.Nil(t, documentsOf(workflow.Result{}))
}

func TestRepoPathOf(t *testing.T) {
	res := workflow.Result{Results: []domain.StepOutput{
		{Name: "prepare", Result: domain.TaskResult{"repo_path": "/tmp/clone"}},
	}}
	assert.Equal(t, "/tmp/clone", repoPathOf(res))

	res = workflow.Result{Results: []domain.StepOutput{
		{Name: "detect", Result: domain.TaskResult{"repo_info": map[string]any{"repo_path": "/tmp/api"}}},
	}}
	assert.Equal(t, "/tmp/api", repoPathOf(res))
	assert.Empty(t, repoPathOf(workflow.Result{}))
}
