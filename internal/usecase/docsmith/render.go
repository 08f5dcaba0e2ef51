package docsmith

import (
	"path"

	"github.com/Travbz/doc-smith/internal/usecase/agent"
)

// renderDocumentation fills the markdown templates from the analysis
// results. Keys of the returned map are paths relative to the repository
// root.
func renderDocumentation(prompts *agent.Prompts, docsPath string, repo repoView, analysis, arch map[string]any) (map[string]string, error) {
	archPath := path.Join(docsPath, "architecture.md")
	setupPath := path.Join(docsPath, "setup.md")

	title := repo.name
	if title == "" {
		title = "Project"
	}
	description := stringField(analysis, "description")
	if description == "" {
		description = repo.description
	}

	var components []map[string]any
	for _, c := range asList(arch["components"]) {
		m := asStringMap(c)
		if m == nil {
			continue
		}
		components = append(components, map[string]any{
			"name":        stringField(m, "name"),
			"description": stringField(m, "description"),
		})
	}

	pages := []struct {
		file string
		name string
		vars map[string]any
	}{
		{"README.md", "readme", map[string]any{
			"title":        title,
			"description":  description,
			"features":     stringList(analysis["features"]),
			"installation": stringField(analysis, "installation"),
			"usage":        stringField(analysis, "usage"),
			"links": []map[string]string{
				{"name": "Architecture", "path": archPath},
				{"name": "Setup", "path": setupPath},
			},
		}},
		{archPath, "architecture", map[string]any{
			"overview":   stringField(arch, "overview"),
			"components": components,
		}},
		{setupPath, "setup", map[string]any{
			"setup":        stringField(analysis, "setup_instructions"),
			"installation": stringField(analysis, "installation"),
		}},
	}

	docs := make(map[string]string, len(pages))
	for _, p := range pages {
		text, err := prompts.Render("docs", p.name, p.vars)
		if err != nil {
			return nil, err
		}
		docs[p.file] = text
	}
	return docs, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	}
	return nil
}
