package docsmith

import (
	"context"
	"path"
	"sort"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/usecase/agent"
)

type analystRole struct {
	docsPath string
}

func (r *analystRole) handlers() map[string]agent.TaskHandler {
	return map[string]agent.TaskHandler{
		"analyze_repository":   r.analyzeRepository,
		"analyze_architecture": r.analyzeArchitecture,
		"update_documentation": r.updateDocumentation,
		"detect_framework":     r.detectFramework,
		"extract_endpoints":    r.extractEndpoints,
		"generate_api_docs":    r.generateAPIDocs,
	}
}

func repoFromTask(task domain.Task, op string) (repoView, error) {
	info := task.Map("repo_info")
	if info == nil {
		return repoView{}, domain.NewDomainError(op, domain.ErrValidation, "missing repo_info")
	}
	return viewRepo(info), nil
}

func (r *analystRole) analyzeRepository(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	repo, err := repoFromTask(task, "code_analyst.analyze_repository")
	if err != nil {
		return nil, err
	}
	return structured(ctx, a, "analyze_repository", map[string]any{
		"name":        repo.name,
		"description": repo.description,
		"digest":      repo.digest(),
	}, analysisSchema)
}

func (r *analystRole) analyzeArchitecture(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	repo, err := repoFromTask(task, "code_analyst.analyze_architecture")
	if err != nil {
		return nil, err
	}
	description := repo.description
	if analysis := task.Map("code_analysis"); analysis != nil {
		if d, ok := analysis["description"].(string); ok && d != "" {
			description = d
		}
	}
	return structured(ctx, a, "analyze_architecture", map[string]any{
		"name":        repo.name,
		"description": description,
		"digest":      repo.digest(),
	}, architectureSchema)
}

// updateDocumentation turns review feedback into per-file changes and
// rewrites each affected file.
func (r *analystRole) updateDocumentation(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	docs := docFiles(task["current_docs"])
	if len(docs) == 0 {
		return nil, domain.NewDomainError("code_analyst.update_documentation", domain.ErrValidation, "missing current_docs")
	}
	feedback := stringList(task["review_feedback"])
	files := make([]string, 0, len(docs))
	for f := range docs {
		files = append(files, f)
	}
	sort.Strings(files)

	plan, err := structured(ctx, a, "process_feedback", map[string]any{
		"feedback": feedback,
		"files":    files,
	}, changesSchema)
	if err != nil {
		return nil, err
	}
	changes := asStringMap(plan["changes"])

	updated := make(map[string]string, len(docs))
	var changed []string
	for _, file := range files {
		updated[file] = docs[file]
		list := stringList(changes[file])
		if len(list) == 0 {
			continue
		}
		text, err := a.GetCompletion(ctx, a.Role(), "apply_changes", map[string]any{
			"file":    file,
			"changes": list,
			"content": docs[file],
		})
		if err != nil {
			return nil, err
		}
		updated[file] = StripFences(text)
		changed = append(changed, file)
	}
	a.Logger().Info("documentation revised", "changed", len(changed), "files", len(files))
	return domain.TaskResult{"documentation": updated, "changed": changed}, nil
}

func (r *analystRole) detectFramework(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	repo, err := repoFromTask(task, "code_analyst.detect_framework")
	if err != nil {
		return nil, err
	}
	return structured(ctx, a, "detect_framework", map[string]any{
		"name":   repo.name,
		"digest": repo.digest(),
	}, frameworkSchema)
}

func (r *analystRole) extractEndpoints(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	repo, err := repoFromTask(task, "code_analyst.extract_endpoints")
	if err != nil {
		return nil, err
	}
	framework, _ := task.Map("framework_info")["framework"].(string)
	if framework == "" {
		framework = "unknown"
	}
	out, err := structured(ctx, a, "extract_endpoints", map[string]any{
		"name":      repo.name,
		"framework": framework,
		"digest":    repo.digest(),
	}, endpointsSchema)
	if err != nil {
		return nil, err
	}
	out["endpoints"] = normalizeEndpoints(out["endpoints"])
	out["framework"] = framework
	return out, nil
}

func (r *analystRole) generateAPIDocs(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	endpoints := normalizeEndpoints(task["endpoints"])
	if len(endpoints) == 0 {
		return nil, domain.NewDomainError("code_analyst.generate_api_docs", domain.ErrValidation, "no endpoints")
	}
	framework := task.String("framework")
	if framework == "" {
		framework = "HTTP"
	}
	text, err := a.GetCompletion(ctx, a.Role(), "generate_api_docs", map[string]any{
		"framework": framework,
		"endpoints": endpoints,
	})
	if err != nil {
		return nil, err
	}
	return domain.TaskResult{
		"documentation": map[string]string{path.Join(r.docsPath, "api.md"): StripFences(text)},
	}, nil
}

// normalizeEndpoints fills the optional description so templates can rely
// on every key.
func normalizeEndpoints(v any) []map[string]any {
	var items []any
	switch l := v.(type) {
	case []map[string]any:
		return l
	case []any:
		items = l
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := m["description"]; !ok {
			m["description"] = ""
		}
		out = append(out, m)
	}
	return out
}
