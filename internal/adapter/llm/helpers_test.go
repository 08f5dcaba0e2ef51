package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Travbz/doc-smith/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	err := mapHTTPError("openai", 429, []byte("slow down"))
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Contains(t, err.Error(), "API error 429: slow down")
}
