package docsmith

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/usecase/agent"
)

const maxClaims = 20

// Review statuses.
const (
	StatusApproved      = "approved"
	StatusNeedsRevision = "needs_revision"
	StatusRevised       = "revised"
)

func reviewerHandlers() map[string]agent.TaskHandler {
	return map[string]agent.TaskHandler{
		"review_documentation": reviewDocumentation,
		"validate_api_docs":    validateAPIDocs,
	}
}

func reviewDocumentation(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	docs := docFiles(task["documentation"])
	if len(docs) == 0 {
		return nil, domain.NewDomainError("doc_reviewer.review_documentation", domain.ErrValidation, "missing documentation")
	}
	repo := viewRepo(task.Map("repo_info"))
	claims := extractClaims(docs)

	review, err := structured(ctx, a, "review_documentation", map[string]any{
		"claims":        claims,
		"documentation": joinDocs(docs),
		"digest":        repo.digest(),
	}, reviewSchema)
	if err != nil {
		return nil, err
	}

	status := StatusApproved
	if needs, _ := review["requires_changes"].(bool); needs {
		status = StatusNeedsRevision
	}
	feedback := stringList(review["suggestions"])
	if feedback == nil {
		feedback = []string{}
	}
	a.Logger().Info("documentation reviewed", "status", status, "claims", len(claims), "suggestions", len(feedback))
	return domain.TaskResult{
		"status":        status,
		"feedback":      feedback,
		"claims":        claims,
		"documentation": docs,
	}, nil
}

func validateAPIDocs(ctx context.Context, a *agent.Agent, task domain.Task) (domain.TaskResult, error) {
	docs := docFiles(task["documentation"])
	if len(docs) == 0 {
		return nil, domain.NewDomainError("doc_reviewer.validate_api_docs", domain.ErrValidation, "missing documentation")
	}
	out, err := structured(ctx, a, "validate_api_docs", map[string]any{
		"documentation": joinDocs(docs),
	}, apiValidationSchema)
	if err != nil {
		return nil, err
	}
	status := StatusApproved
	if needs, _ := out["requires_changes"].(bool); needs {
		status = StatusNeedsRevision
	}
	return domain.TaskResult{
		"status":             status,
		"validation_results": out["results"],
		"feedback":           stringList(out["suggestions"]),
		"documentation":      docs,
	}, nil
}

// extractClaims picks the statements a reviewer can check against code:
// list items and lines that mention code in backticks.
func extractClaims(docs map[string]string) []string {
	files := make([]string, 0, len(docs))
	for f := range docs {
		files = append(files, f)
	}
	sort.Strings(files)

	seen := make(map[string]bool)
	claims := []string{}
	for _, f := range files {
		for _, line := range strings.Split(docs[f], "\n") {
			line = strings.TrimSpace(line)
			item, isItem := strings.CutPrefix(line, "- ")
			if !isItem {
				item, isItem = strings.CutPrefix(line, "* ")
			}
			if !isItem && !strings.Contains(line, "`") {
				continue
			}
			if isItem {
				line = item
			}
			if line == "" || strings.HasPrefix(line, "[") || seen[line] {
				continue
			}
			seen[line] = true
			claims = append(claims, line)
			if len(claims) == maxClaims {
				return claims
			}
		}
	}
	return claims
}

func joinDocs(docs map[string]string) string {
	files := make([]string, 0, len(docs))
	for f := range docs {
		files = append(files, f)
	}
	sort.Strings(files)
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "=== %s ===\n%s\n", f, docs[f])
	}
	return b.String()
}
