package docsmith

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Travbz/doc-smith/internal/usecase/agent"
)

//go:embed prompts.yaml
var promptsYAML []byte

// LoadPrompts parses the embedded prompt library.
func LoadPrompts() (*agent.Prompts, error) {
	var src map[string]map[string]string
	if err := yaml.Unmarshal(promptsYAML, &src); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	return agent.NewPrompts(src)
}
