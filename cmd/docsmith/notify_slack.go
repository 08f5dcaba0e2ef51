//go:build slack

package main

import (
	"github.com/Travbz/doc-smith/internal/adapter/notify"
	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

func buildSlackNotifier(cfg config.SlackNotifyConfig) (domain.Notifier, error) {
	return notify.NewSlack(cfg.Token, cfg.Channel)
}
