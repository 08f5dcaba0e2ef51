//go:build discord

package main

import (
	"github.com/Travbz/doc-smith/internal/adapter/notify"
	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

func buildDiscordNotifier(cfg config.DiscordNotifyConfig) (domain.Notifier, error) {
	return notify.NewDiscord(cfg.Token, cfg.ChannelID)
}
