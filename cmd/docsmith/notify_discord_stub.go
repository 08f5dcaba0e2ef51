//go:build !discord

package main

import (
	"fmt"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

func buildDiscordNotifier(_ config.DiscordNotifyConfig) (domain.Notifier, error) {
	return nil, fmt.Errorf("discord notifier requires build with -tags discord")
}
