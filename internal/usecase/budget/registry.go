// Package budget holds the static table mapping logical roles to model settings.
package budget

import (
	"sort"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

// Role names known to the documentation pipeline.
const (
	RoleCodeAnalysis       = "code_analysis"
	RoleArchitecture       = "architecture"
	RoleDocumentation      = "documentation"
	RoleReview             = "review"
	RoleAPIDocs            = "api_docs"
	RoleDependencyAnalysis = "dependency_analysis"
	RoleSchemaGeneration   = "schema_generation"
)

const defaultMaxTokens = 4000

// Defaults returns the built-in role table.
func Defaults() map[string]domain.ModelConfig {
	return map[string]domain.ModelConfig{
		RoleCodeAnalysis: {
			Model:       "gpt-4-turbo-preview",
			Temperature: 0.2,
			MaxTokens:   defaultMaxTokens,
		},
		RoleArchitecture: {
			Model:            "gpt-4-turbo-preview",
			Temperature:      0.3,
			MaxTokens:        defaultMaxTokens,
			FrequencyPenalty: 0.1,
			PresencePenalty:  0.1,
		},
		RoleDocumentation: {
			Model:            "gpt-3.5-turbo-1106",
			Temperature:      0.7,
			MaxTokens:        defaultMaxTokens,
			FrequencyPenalty: 0.2,
			PresencePenalty:  0.2,
		},
		RoleReview: {
			Model:            "gpt-4-turbo-preview",
			Temperature:      0.2,
			MaxTokens:        defaultMaxTokens,
			FrequencyPenalty: 0.1,
			PresencePenalty:  0.1,
		},
		RoleAPIDocs: {
			Model:       "gpt-3.5-turbo-1106",
			Temperature: 0.3,
			MaxTokens:   defaultMaxTokens,
		},
		RoleDependencyAnalysis: {
			Model:       "gpt-3.5-turbo-1106",
			Temperature: 0.2,
			MaxTokens:   defaultMaxTokens,
		},
		RoleSchemaGeneration: {
			Model:       "gpt-3.5-turbo-1106",
			Temperature: 0.2,
			MaxTokens:   defaultMaxTokens,
		},
	}
}

// Registry resolves a role name to its ModelConfig. It is read-only after
// construction and safe for concurrent use without locking.
type Registry struct {
	models map[string]domain.ModelConfig
}

// NewRegistry copies models into a new registry.
func NewRegistry(models map[string]domain.ModelConfig) *Registry {
	m := make(map[string]domain.ModelConfig, len(models))
	for role, cfg := range models {
		m[role] = cfg
	}
	return &Registry{models: m}
}

// FromConfig builds a registry from the built-in table with config overrides applied.
func FromConfig(entries map[string]config.ModelEntry) *Registry {
	models := Defaults()
	for role, e := range entries {
		models[role] = domain.ModelConfig{
			Model:            e.Model,
			Temperature:      e.Temperature,
			MaxTokens:        e.MaxTokens,
			FrequencyPenalty: e.FrequencyPenalty,
			PresencePenalty:  e.PresencePenalty,
		}
	}
	return NewRegistry(models)
}

// Get returns the ModelConfig registered for role.
func (r *Registry) Get(role string) (domain.ModelConfig, error) {
	cfg, ok := r.models[role]
	if !ok {
		return domain.ModelConfig{}, domain.NewSubSystemError("budget", "Registry.Get", domain.ErrConfig,
			"no model configured for role "+role)
	}
	return cfg, nil
}

// Roles returns the registered role names in sorted order.
func (r *Registry) Roles() []string {
	roles := make([]string, 0, len(r.models))
	for role := range r.models {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Models returns the distinct model identifiers in use, sorted.
func (r *Registry) Models() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cfg := range r.models {
		if !seen[cfg.Model] {
			seen[cfg.Model] = true
			out = append(out, cfg.Model)
		}
	}
	sort.Strings(out)
	return out
}
