//go:build !bedrock

package main

import (
	"fmt"
	"log/slog"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

func createBedrockProvider(_ config.LLMConfig, _ *slog.Logger) (domain.CompletionProvider, error) {
	return nil, fmt.Errorf("bedrock provider requires build with -tags bedrock")
}
