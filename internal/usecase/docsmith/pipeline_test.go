package docsmith

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
)

func TestEveryAgentRejectsTaskWithoutType(t *testing.T) {
	env := newTestEnv(t, false)
	for _, role := range []string{RoleTechLead, RoleCodeAnalyst, RoleDocReviewer, RoleGitHub} {
		t.Run(role, func(t *testing.T) {
			h, err := env.pipeline.Registry.Get(role)
			require.NoError(t, err)

			_, err = h.HandleTask(context.Background(), domain.Task{"repo_url": "a/b"})
			assert.ErrorIs(t, err, domain.ErrValidation)

			_, err = h.HandleTask(context.Background(), domain.Task{"type": 42})
			assert.ErrorIs(t, err, domain.ErrValidation)

			_, err = h.HandleTask(context.Background(), domain.Task{"type": "no_such_task"})
			assert.ErrorIs(t, err, domain.ErrUnknownTaskType)
		})
	}
}

func TestAgentCapabilities(t *testing.T) {
	env := newTestEnv(t, false)
	want := map[string][]string{
		RoleTechLead:    {"plan_documentation"},
		RoleCodeAnalyst: {"analyze_architecture", "analyze_repository", "detect_framework", "extract_endpoints", "generate_api_docs", "update_documentation"},
		RoleDocReviewer: {"review_documentation", "validate_api_docs"},
		RoleGitHub:      {"create_pull_request", "prepare_repository", "update_documentation"},
	}
	for role, caps := range want {
		a, ok := env.pipeline.Agent(role)
		require.True(t, ok, role)
		assert.Equal(t, caps, a.Capabilities(), role)
	}
}

func TestAgentModels(t *testing.T) {
	env := newTestEnv(t, false)
	a, _ := env.pipeline.Agent(RoleCodeAnalyst)
	assert.Equal(t, "gpt-4-turbo-preview", a.Model().Model)
	a, _ = env.pipeline.Agent(RoleGitHub)
	assert.Equal(t, "gpt-3.5-turbo-1106", a.Model().Model)
}

func TestDelegationGraph(t *testing.T) {
	env := newTestEnv(t, false)
	r := env.pipeline.Router
	assert.True(t, r.CanDelegate(RoleTechLead, RoleGitHub))
	assert.True(t, r.CanDelegate(RoleCodeAnalyst, RoleDocReviewer))
	assert.False(t, r.CanDelegate(RoleCodeAnalyst, RoleGitHub))
	assert.False(t, r.CanDelegate(RoleDocReviewer, RoleTechLead))

	_, err := r.Delegate(context.Background(), RoleGitHub, RoleCodeAnalyst, domain.Task{"type": "analyze_repository"})
	assert.ErrorIs(t, err, domain.ErrDelegation)
}

func TestPlanDocumentation(t *testing.T) {
	env := newTestEnv(t, false)
	lead, _ := env.pipeline.Agent(RoleTechLead)

	res, err := lead.HandleTask(context.Background(), domain.Task{
		"type":     "plan_documentation",
		"repo_url": "acme/demo",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{WorkflowDocumentation, WorkflowAPIDocumentation}, res["workflows"])
	assert.Equal(t, []string{"https://github.com/acme/demo@main"}, env.git.cloned)
}

func TestPrepareRepository(t *testing.T) {
	env := newTestEnv(t, false)
	gh, _ := env.pipeline.Agent(RoleGitHub)

	res, err := gh.HandleTask(context.Background(), domain.Task{
		"type":     "prepare_repository",
		"repo_url": "acme/demo",
		"branch":   "develop",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme/demo", res.String("name"))
	assert.Equal(t, "develop", res.String("branch"))
	assert.NotEmpty(t, res.String("repo_path"))
	st, ok := res["structure"].(*Structure)
	require.True(t, ok)
	assert.Len(t, st.Files, 2)
	assert.Equal(t, "A demo service", res.Map("metadata")["description"])
}

func TestPrepareRepositoryUnstructuredDescription(t *testing.T) {
	env := newTestEnv(t, false)
	env.completer.set("describe_repository", "Just some prose.")
	gh, _ := env.pipeline.Agent(RoleGitHub)

	res, err := gh.HandleTask(context.Background(), domain.Task{"type": "prepare_repository", "repo_url": "acme/demo"})
	require.NoError(t, err)
	assert.Equal(t, "Just some prose.", res.Map("metadata")["description"])
}

func TestPrepareRepositoryBadReference(t *testing.T) {
	env := newTestEnv(t, false)
	gh, _ := env.pipeline.Agent(RoleGitHub)
	_, err := gh.HandleTask(context.Background(), domain.Task{"type": "prepare_repository", "repo_url": "not a repo"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, env.git.cloned)
}

func TestCreatePullRequestRequiresPreparedRepo(t *testing.T) {
	env := newTestEnv(t, false)
	gh, _ := env.pipeline.Agent(RoleGitHub)
	_, err := gh.HandleTask(context.Background(), domain.Task{
		"type":          "create_pull_request",
		"repo_url":      "acme/demo",
		"documentation": map[string]string{"README.md": "# x"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, env.prs.inputs)
}

func TestUpdateDocumentationAppliesFeedback(t *testing.T) {
	env := newTestEnv(t, false)
	analyst, _ := env.pipeline.Agent(RoleCodeAnalyst)

	res, err := analyst.HandleTask(context.Background(), domain.Task{
		"type":            "update_documentation",
		"current_docs":    map[string]string{"README.md": "# Old", "docs/setup.md": "# Setup"},
		"review_feedback": []string{"Explain the health endpoint"},
	})
	require.NoError(t, err)
	docs := docFiles(res["documentation"])
	assert.Equal(t, "# Revised README", docs["README.md"])
	assert.Equal(t, "# Setup", docs["docs/setup.md"])
	assert.Equal(t, []string{"README.md"}, res["changed"])
	assert.Equal(t, 1, env.completer.called("apply_changes"))
}

func TestReviewNeedsRevision(t *testing.T) {
	env := newTestEnv(t, false)
	env.completer.set("review_documentation", `{"requires_changes": true, "suggestions": ["Mention the port"]}`)
	reviewer, _ := env.pipeline.Agent(RoleDocReviewer)

	res, err := reviewer.HandleTask(context.Background(), domain.Task{
		"type":          "review_documentation",
		"documentation": map[string]string{"README.md": "# Demo\n\n- Serves `/health`\n"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsRevision, res.String("status"))
	assert.Equal(t, []string{"Mention the port"}, res["feedback"])
	assert.Equal(t, []string{"Serves `/health`"}, res["claims"])
}

func TestMalformedAnswerIsModelError(t *testing.T) {
	env := newTestEnv(t, false)
	env.completer.set("detect_framework", `{"framework": "gin"}`)
	analyst, _ := env.pipeline.Agent(RoleCodeAnalyst)

	_, err := analyst.HandleTask(context.Background(), domain.Task{
		"type":      "detect_framework",
		"repo_info": map[string]any{"name": "acme/demo"},
	})
	assert.ErrorIs(t, err, domain.ErrModel)
	assert.False(t, domain.IsRetryableError(err))
}

func TestExtractClaims(t *testing.T) {
	claims := extractClaims(map[string]string{
		"README.md": "# T\n\n- one\n- one\n* two\nSee `main.go`.\n- [Link](x.md)\nplain prose\n",
	})
	assert.Equal(t, []string{"one", "two", "See `main.go`."}, claims)
}
