package docsmith

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
	"github.com/Travbz/doc-smith/internal/usecase/agent"
)

// githubRole owns the working copy and the pull request.
type githubRole struct {
	git     domain.GitHost
	prs     domain.PullRequester
	scanner *Scanner
	hosting config.HostingConfig
	dryRun  bool
	now     func() time.Time
}

func (g *githubRole) handlers() map[string]agent.TaskHandler {
	return map[string]agent.TaskHandler{
		"prepare_repository":   g.prepareRepository,
		"create_pull_request":  g.createPullRequest,
		"update_documentation": g.updateDocumentation,
	}
}

func repoStateKey(url string) string { return "repo:" + url }

func (g *githubRole) prepareRepository(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	url, err := NormalizeRepoRef(task.String("repo_url"))
	if err != nil {
		return nil, err
	}
	branch := task.String("branch")
	if branch == "" {
		branch = g.hosting.BaseBranch
	}
	if g.git == nil {
		return nil, domain.NewDomainError("github.prepare_repository", domain.ErrConfig, "no git host")
	}

	path, err := g.git.Clone(ctx, url, branch)
	if err != nil {
		return nil, fmt.Errorf("clone %s: %w", url, err)
	}
	structure, err := g.scanner.Scan(ctx, path)
	if err != nil {
		return nil, err
	}

	name := RepoName(url)
	text, err := a.GetCompletion(ctx, RoleGitHub, "describe_repository", map[string]any{
		"name":   name,
		"digest": structure.Digest(promptDigestChars),
	})
	if err != nil {
		return nil, err
	}
	metadata, err := decodeAnswer(text, metadataSchema)
	if err != nil {
		a.Logger().Warn("repository description is not structured, using raw text", "error", err)
		metadata = map[string]any{"description": strings.TrimSpace(text)}
	}

	info := domain.TaskResult{
		"repo_url":  url,
		"name":      name,
		"branch":    branch,
		"repo_path": path,
		"structure": structure,
		"metadata":  metadata,
	}
	a.UpdateState(map[string]any{repoStateKey(url): info})
	a.Logger().Info("repository prepared", "repo", name, "files", len(structure.Files), "path", path)
	return info, nil
}

// preparedRepo returns the info recorded by prepare_repository.
func (g *githubRole) preparedRepo(a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	url, err := NormalizeRepoRef(task.String("repo_url"))
	if err != nil {
		return nil, err
	}
	info, ok := a.State()[repoStateKey(url)].(domain.TaskResult)
	if !ok {
		return nil, domain.NewDomainError("github", domain.ErrValidation, "repository not prepared: "+url)
	}
	return info, nil
}

func (g *githubRole) createPullRequest(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	info, err := g.preparedRepo(a, task)
	if err != nil {
		return nil, err
	}
	docs := docFiles(task["documentation"])
	if len(docs) == 0 {
		return nil, domain.NewDomainError("github.create_pull_request", domain.ErrValidation, "no documentation files")
	}
	repo := viewRepo(info)
	branch := g.hosting.BranchPrefix + g.now().Format("20060102_150405")

	files := make([]string, 0, len(docs))
	for f := range docs {
		files = append(files, f)
	}
	sort.Strings(files)
	body, err := a.GetCompletion(ctx, RoleGitHub, "pr_description", map[string]any{
		"name":  repo.name,
		"files": files,
	})
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(StripFences(body))
	if g.hosting.PRBody != "" {
		body += "\n\n" + g.hosting.PRBody
	}

	if g.dryRun {
		a.UpdateState(map[string]any{"branch:" + repo.url: branch})
		a.Logger().Info("dry run, skipping push and pull request", "branch", branch, "files", len(files))
		return domain.TaskResult{
			"pr_url":    "",
			"pr_number": 0,
			"branch":    branch,
			"pr_body":   body,
			"dry_run":   true,
		}, nil
	}
	if g.prs == nil {
		return nil, domain.NewDomainError("github.create_pull_request", domain.ErrConfig, "no pull request client")
	}

	if err := g.git.CreateBranch(ctx, repo.path, branch); err != nil {
		return nil, fmt.Errorf("create branch %s: %w", branch, err)
	}
	commit, err := g.git.Commit(ctx, repo.path, docs, g.hosting.CommitMessage)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if err := g.git.Push(ctx, repo.path, branch); err != nil {
		return nil, fmt.Errorf("push %s: %w", branch, err)
	}

	base, _ := info["branch"].(string)
	pr, err := g.prs.OpenPullRequest(ctx, domain.PullRequestInput{
		RepoRef:   repo.name,
		Title:     g.hosting.PRTitle,
		Body:      body,
		Head:      branch,
		Base:      base,
		Draft:     g.hosting.Draft,
		Labels:    g.hosting.Labels,
		Reviewers: g.hosting.Reviewers,
	})
	if err != nil {
		return nil, fmt.Errorf("open pull request: %w", err)
	}

	a.UpdateState(map[string]any{"branch:" + repo.url: branch})
	a.Logger().Info("pull request opened", "url", pr.URL, "number", pr.Number)
	return domain.TaskResult{
		"pr_url":    pr.URL,
		"pr_number": pr.Number,
		"branch":    branch,
		"commit":    commit,
	}, nil
}

// updateDocumentation commits follow-up changes to the pull request branch.
func (g *githubRole) updateDocumentation(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	info, err := g.preparedRepo(a, task)
	if err != nil {
		return nil, err
	}
	repo := viewRepo(info)
	branch, ok := a.State()["branch:"+repo.url].(string)
	if !ok {
		return nil, domain.NewDomainError("github.update_documentation", domain.ErrValidation, "no pull request branch for "+repo.url)
	}
	docs := docFiles(task["documentation"])
	if len(docs) == 0 {
		return nil, domain.NewDomainError("github.update_documentation", domain.ErrValidation, "no documentation files")
	}
	if g.dryRun {
		return domain.TaskResult{"status": "updated", "pr_number": task["pr_number"], "dry_run": true}, nil
	}

	commit, err := g.git.Commit(ctx, repo.path, docs, "docs: update documentation based on review")
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	if err := g.git.Push(ctx, repo.path, branch); err != nil {
		return nil, fmt.Errorf("push %s: %w", branch, err)
	}
	return domain.TaskResult{
		"status":    "updated",
		"pr_number": task["pr_number"],
		"commit":    commit,
	}, nil
}
