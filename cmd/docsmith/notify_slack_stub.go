//go:build !slack

package main

import (
	"fmt"

	"github.com/Travbz/doc-smith/internal/domain"
	"github.com/Travbz/doc-smith/internal/infra/config"
)

func buildSlackNotifier(_ config.SlackNotifyConfig) (domain.Notifier, error) {
	return nil, fmt.Errorf("slack notifier requires build with -tags slack")
}
