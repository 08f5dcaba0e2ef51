package agent

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/Travbz/doc-smith/internal/domain"
)

// Prompts is an immutable library of prompt templates addressed by
// (role, name). Templates are parsed once at construction.
type Prompts struct {
	templates map[string]map[string]*template.Template
}

// NewPrompts parses every template in src. A template that does not parse
// is reported as ErrTemplate.
func NewPrompts(src map[string]map[string]string) (*Prompts, error) {
	p := &Prompts{templates: make(map[string]map[string]*template.Template, len(src))}
	for role, byName := range src {
		p.templates[role] = make(map[string]*template.Template, len(byName))
		for name, text := range byName {
			tmpl, err := template.New(role + "/" + name).Option("missingkey=error").Parse(text)
			if err != nil {
				return nil, domain.NewDomainError("Prompts.Parse", domain.ErrTemplate, fmt.Sprintf("%s/%s: %v", role, name, err))
			}
			p.templates[role][name] = tmpl
		}
	}
	return p, nil
}

// Render executes the (role, name) template with vars. Unknown templates
// return ErrNotFound; a variable the template needs but vars lacks returns
// ErrTemplate.
func (p *Prompts) Render(role, name string, vars map[string]any) (string, error) {
	tmpl, ok := p.templates[role][name]
	if !ok {
		return "", domain.NewSubSystemError("prompt", "Prompts.Render", domain.ErrNotFound, role+"/"+name)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", domain.NewDomainError("Prompts.Render", domain.ErrTemplate, fmt.Sprintf("%s/%s: %v", role, name, err))
	}
	return buf.String(), nil
}

// Names returns the template names registered for role, sorted.
func (p *Prompts) Names(role string) []string {
	names := make([]string, 0, len(p.templates[role]))
	for n := range p.templates[role] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
