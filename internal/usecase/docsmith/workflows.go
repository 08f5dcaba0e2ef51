package docsmith

import (
	"context"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/usecase/agent"
	"github.com/Travbz/doc-smith/internal/usecase/workflow"
)

// Workflow types.
const (
	WorkflowDocumentation    = "documentation"
	WorkflowAPIDocumentation = "api_documentation"
)

// Run parameters.
const (
	ParamRepoURL = "repo_url"
	ParamBranch  = "branch"
	// ParamRepoInfo lets api_documentation reuse an already prepared repository.
	ParamRepoInfo = "repo_info"
)

type steps struct {
	router   agent.Delegator
	prompts  *agent.Prompts
	docsPath string
}

// Definitions returns the documentation workflows. Every step delegates as
// the tech lead.
func Definitions(router agent.Delegator, prompts *agent.Prompts, docsPath string) []workflow.Definition {
	s := &steps{router: router, prompts: prompts, docsPath: docsPath}
	return []workflow.Definition{
		{
			Type:        WorkflowDocumentation,
			Description: "Analyze a repository, write and review its documentation, and open a pull request.",
			Steps: []workflow.Step{
				{Name: "prepare_repository", Handler: s.prepareRepository, RequiredKeys: []string{"repo_path", "structure"}},
				{Name: "analyze_code", Handler: s.analyzeCode, RequiredKeys: []string{"analysis", "architecture"}},
				{Name: "generate_documentation", Handler: s.generateDocumentation, RequiredKeys: []string{"documentation"}},
				{Name: "review_documentation", Handler: s.reviewDocumentation, RequiredKeys: []string{"status", "feedback"}},
				{Name: "create_pull_request", Handler: s.createPullRequest, RequiredKeys: []string{"pr_url", "pr_number"}},
			},
		},
		{
			Type:        WorkflowAPIDocumentation,
			Description: "Detect the API framework, extract endpoints and write validated API docs.",
			Steps: []workflow.Step{
				{Name: "detect_api_framework", Handler: s.detectAPIFramework, RequiredKeys: []string{"framework", "version"}},
				{Name: "extract_endpoints", Handler: s.extractEndpoints, RequiredKeys: []string{"endpoints"}},
				{Name: "generate_api_docs", Handler: s.generateAPIDocs, RequiredKeys: []string{"documentation"}},
				{Name: "validate_api_docs", Handler: s.validateAPIDocs, RequiredKeys: []string{"status", "validation_results"}},
			},
		},
	}
}

func (s *steps) delegate(ctx context.Context, receiver string, task domain.Task) (domain.TaskResult, error) {
	return s.router.Delegate(ctx, RoleTechLead, receiver, task)
}

func previous(p workflow.Params, step string) (domain.TaskResult, error) {
	r, ok := p[workflow.PreviousStepKey].(domain.TaskResult)
	if !ok {
		return nil, domain.NewDomainError(step, domain.ErrValidation, "no previous step result")
	}
	return r, nil
}

func (s *steps) prepareRepository(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	url, _ := p[ParamRepoURL].(string)
	branch, _ := p[ParamBranch].(string)
	return s.delegate(ctx, RoleGitHub, domain.Task{
		"type":     "prepare_repository",
		"repo_url": url,
		"branch":   branch,
	})
}

func (s *steps) analyzeCode(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	repoInfo, err := previous(p, "analyze_code")
	if err != nil {
		return nil, err
	}
	analysis, err := s.delegate(ctx, RoleCodeAnalyst, domain.Task{
		"type":      "analyze_repository",
		"repo_info": repoInfo,
	})
	if err != nil {
		return nil, err
	}
	arch, err := s.delegate(ctx, RoleCodeAnalyst, domain.Task{
		"type":          "analyze_architecture",
		"repo_info":     repoInfo,
		"code_analysis": analysis,
	})
	if err != nil {
		return nil, err
	}
	return domain.TaskResult{
		"analysis":     analysis,
		"architecture": arch,
		"repo_info":    repoInfo,
	}, nil
}

func (s *steps) generateDocumentation(_ context.Context, p workflow.Params) (domain.TaskResult, error) {
	prev, err := previous(p, "generate_documentation")
	if err != nil {
		return nil, err
	}
	repoInfo := prev.Map("repo_info")
	docs, err := renderDocumentation(s.prompts, s.docsPath, viewRepo(repoInfo), prev.Map("analysis"), prev.Map("architecture"))
	if err != nil {
		return nil, err
	}
	return domain.TaskResult{
		"documentation": docs,
		"repo_info":     repoInfo,
	}, nil
}

// reviewDocumentation asks for a review and, when it needs revision, has
// the code analyst apply the feedback before the pull request is opened.
func (s *steps) reviewDocumentation(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	prev, err := previous(p, "review_documentation")
	if err != nil {
		return nil, err
	}
	docs := prev["documentation"]
	repoInfo := prev.Map("repo_info")

	review, err := s.delegate(ctx, RoleDocReviewer, domain.Task{
		"type":          "review_documentation",
		"documentation": docs,
		"repo_info":     repoInfo,
	})
	if err != nil {
		return nil, err
	}
	feedback := review["feedback"]
	if review.String("status") != StatusNeedsRevision {
		return domain.TaskResult{
			"documentation": docs,
			"repo_info":     repoInfo,
			"status":        StatusApproved,
			"feedback":      feedback,
		}, nil
	}

	updated, err := s.delegate(ctx, RoleCodeAnalyst, domain.Task{
		"type":            "update_documentation",
		"current_docs":    docs,
		"review_feedback": feedback,
	})
	if err != nil {
		return nil, err
	}
	return domain.TaskResult{
		"documentation": updated["documentation"],
		"repo_info":     repoInfo,
		"status":        StatusRevised,
		"feedback":      feedback,
	}, nil
}

func (s *steps) createPullRequest(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	prev, err := previous(p, "create_pull_request")
	if err != nil {
		return nil, err
	}
	repoURL, _ := prev.Map("repo_info")["repo_url"].(string)
	result, err := s.delegate(ctx, RoleGitHub, domain.Task{
		"type":          "create_pull_request",
		"repo_url":      repoURL,
		"documentation": prev["documentation"],
	})
	if err != nil {
		return nil, err
	}
	result = result.Clone()
	result["documentation"] = prev["documentation"]
	return result, nil
}

func (s *steps) detectAPIFramework(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	repoInfo := asStringMap(p[ParamRepoInfo])
	if repoInfo == nil {
		prepared, err := s.prepareRepository(ctx, p)
		if err != nil {
			return nil, err
		}
		repoInfo = prepared
	}
	result, err := s.delegate(ctx, RoleCodeAnalyst, domain.Task{
		"type":      "detect_framework",
		"repo_info": repoInfo,
	})
	if err != nil {
		return nil, err
	}
	result = result.Clone()
	result["repo_info"] = repoInfo
	return result, nil
}

func (s *steps) extractEndpoints(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	prev, err := previous(p, "extract_endpoints")
	if err != nil {
		return nil, err
	}
	return s.delegate(ctx, RoleCodeAnalyst, domain.Task{
		"type":           "extract_endpoints",
		"framework_info": prev,
		"repo_info":      prev.Map("repo_info"),
	})
}

func (s *steps) generateAPIDocs(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	prev, err := previous(p, "generate_api_docs")
	if err != nil {
		return nil, err
	}
	return s.delegate(ctx, RoleCodeAnalyst, domain.Task{
		"type":      "generate_api_docs",
		"endpoints": prev["endpoints"],
		"framework": prev["framework"],
	})
}

func (s *steps) validateAPIDocs(ctx context.Context, p workflow.Params) (domain.TaskResult, error) {
	prev, err := previous(p, "validate_api_docs")
	if err != nil {
		return nil, err
	}
	return s.delegate(ctx, RoleDocReviewer, domain.Task{
		"type":          "validate_api_docs",
		"documentation": prev["documentation"],
	})
}
