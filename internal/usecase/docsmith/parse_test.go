package docsmith

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Travbz/doc-smith/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"a": 1}`, `{"a": 1}`, true},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"untagged fence", "```\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"prose around", `Sure! {"a": {"b": 2}} Hope that helps.`, `{"a": {"b": 2}}`, true},
		{"braces in strings", `{"s": "a } b {"}`, `{"s": "a } b {"}`, true},
		{"escaped quote", `{"s": "say \"}\""}`, `{"s": "say \"}\""}`, true},
		{"none", "no json", "", false},
		{"unbalanced", `{"a": 1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "# Title", StripFences("```markdown\n# Title\n```"))
	assert.Equal(t, "# Title", StripFences("  # Title \n"))
	assert.Equal(t, "a ``` b", StripFences("a ``` b"))
}

func TestDecodeAnswer(t *testing.T) {
	out, err := decodeAnswer(`{"framework": "gin", "version": "1.9"}`, frameworkSchema)
	require.NoError(t, err)
	assert.Equal(t, "gin", out["framework"])

	_, err = decodeAnswer(`{"framework": "gin"}`, frameworkSchema)
	assert.ErrorIs(t, err, domain.ErrModel)

	_, err = decodeAnswer(`{"framework": 3, "version": "1"}`, frameworkSchema)
	assert.ErrorIs(t, err, domain.ErrModel)

	_, err = decodeAnswer("nothing", frameworkSchema)
	assert.ErrorIs(t, err, domain.ErrModel)
}

func TestStringListAndDocFiles(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringList([]any{"a", 1, "b"}))
	assert.Nil(t, stringList("a"))

	assert.Equal(t, map[string]string{"a.md": "x"}, docFiles(map[string]any{"a.md": "x", "b.md": 2}))
	assert.Equal(t, map[string]string{"a.md": "x"}, docFiles(domain.TaskResult{"a.md": "x"}))
	assert.Nil(t, docFiles(nil))
}
