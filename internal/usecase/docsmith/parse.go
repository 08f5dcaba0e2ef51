package docsmith

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/usecase/agent"
)

// Schemas for the structured answers the roles ask for.
var (
	metadataSchema = mustSchema(`{
		"type": "object",
		"required": ["description"],
		"properties": {
			"description": {"type": "string"},
			"topics": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	analysisSchema = mustSchema(`{
		"type": "object",
		"required": ["description", "features", "has_api", "installation", "usage"],
		"properties": {
			"description": {"type": "string"},
			"features": {"type": "array", "items": {"type": "string"}},
			"has_api": {"type": "boolean"},
			"setup_instructions": {"type": "string"},
			"installation": {"type": "string"},
			"usage": {"type": "string"}
		}
	}`)

	architectureSchema = mustSchema(`{
		"type": "object",
		"required": ["overview", "components"],
		"properties": {
			"overview": {"type": "string"},
			"components": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name", "description"],
					"properties": {
						"name": {"type": "string"},
						"description": {"type": "string"}
					}
				}
			}
		}
	}`)

	changesSchema = mustSchema(`{
		"type": "object",
		"required": ["changes"],
		"properties": {
			"changes": {
				"type": "object",
				"additionalProperties": {"type": "array", "items": {"type": "string"}}
			}
		}
	}`)

	reviewSchema = mustSchema(`{
		"type": "object",
		"required": ["requires_changes", "suggestions"],
		"properties": {
			"requires_changes": {"type": "boolean"},
			"suggestions": {"type": "array", "items": {"type": "string"}}
		}
	}`)

	frameworkSchema = mustSchema(`{
		"type": "object",
		"required": ["framework", "version"],
		"properties": {
			"framework": {"type": "string"},
			"version": {"type": "string"}
		}
	}`)

	endpointsSchema = mustSchema(`{
		"type": "object",
		"required": ["endpoints"],
		"properties": {
			"endpoints": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["method", "path"],
					"properties": {
						"method": {"type": "string"},
						"path": {"type": "string"},
						"description": {"type": "string"}
					}
				}
			}
		}
	}`)

	apiValidationSchema = mustSchema(`{
		"type": "object",
		"required": ["requires_changes", "suggestions", "results"],
		"properties": {
			"requires_changes": {"type": "boolean"},
			"suggestions": {"type": "array", "items": {"type": "string"}},
			"results": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["endpoint", "valid"],
					"properties": {
						"endpoint": {"type": "string"},
						"valid": {"type": "boolean"},
						"notes": {"type": "string"}
					}
				}
			}
		}
	}`)
)

func mustSchema(src string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(src))
	if err != nil {
		panic(fmt.Sprintf("docsmith: invalid schema: %v", err))
	}
	return schema
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

var wholeFenceRe = regexp.MustCompile("(?s)^```[\\w-]*\\s*(.*?)\\s*```$")

// ExtractJSON returns the JSON object inside an LLM answer: the body of the
// first fenced block if there is one, otherwise the first balanced {...}.
func ExtractJSON(text string) (string, bool) {
	if m := fenceRe.FindStringSubmatch(text); len(m) > 1 && strings.HasPrefix(m[1], "{") {
		return m[1], true
	}
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// StripFences removes a markdown fence wrapping a whole answer.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := wholeFenceRe.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return text
}

// decodeAnswer extracts, decodes and validates a structured answer. Answers
// that do not conform are model errors and are not retried.
func decodeAnswer(text string, schema *jsonschema.Schema) (map[string]any, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, fmt.Errorf("%w: answer contains no JSON object", domain.ErrModel)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: decode answer: %v", domain.ErrModel, err)
	}
	if result := schema.Validate(out); !result.IsValid() {
		return nil, fmt.Errorf("%w: answer does not match schema: %s", domain.ErrModel, result.Error())
	}
	return out, nil
}

// structured renders a prompt, asks the model and validates the answer.
func structured(ctx context.Context, a *agent.Agent, name string, vars map[string]any, schema *jsonschema.Schema) (domain.TaskResult, error) {
	text, err := a.GetCompletion(ctx, a.Role(), name, vars)
	if err != nil {
		return nil, err
	}
	out, err := decodeAnswer(text, schema)
	if err != nil {
		return nil, err
	}
	return domain.TaskResult(out), nil
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// docFiles reads a path -> content mapping from a task value.
func docFiles(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case domain.TaskResult:
		return docFiles(map[string]any(m))
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}
