//go:build bedrock

package main

import (
	"log/slog"

	"github.com/Travbz/doc-smith/internal/adapter/llm"
	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

func createBedrockProvider(cfg config.LLMConfig, log *slog.Logger) (domain.CompletionProvider, error) {
	return llm.NewBedrockProvider(cfg, log)
}
