package docsmith

import (
	"context"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/usecase/agent"
)

func techLeadHandlers() map[string]agent.TaskHandler {
	return map[string]agent.TaskHandler{
		"plan_documentation": planDocumentation,
	}
}

// planDocumentation prepares and analyzes a repository and decides which
// workflows it needs.
func planDocumentation(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	repoInfo, err := a.Delegate(ctx, RoleGitHub, domain.Task{
		"type":     "prepare_repository",
		"repo_url": task.String("repo_url"),
		"branch":   task.String("branch"),
	})
	if err != nil {
		return nil, err
	}
	analysis, err := a.Delegate(ctx, RoleCodeAnalyst, domain.Task{
		"type":      "analyze_repository",
		"repo_info": repoInfo,
	})
	if err != nil {
		return nil, err
	}

	workflows := []string{WorkflowDocumentation}
	if hasAPI, _ := analysis["has_api"].(bool); hasAPI {
		workflows = append(workflows, WorkflowAPIDocumentation)
	}
	a.UpdateState(map[string]any{"last_plan": workflows})
	return domain.TaskResult{
		"repo_info": repoInfo,
		"analysis":  analysis,
		"workflows": workflows,
	}, nil
}
