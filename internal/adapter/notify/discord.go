//go:build discord

package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/Travbz/doc-smith/internal/domain"
)

// Discord posts messages to one Discord channel with a bot token. It uses
// the REST API only and never opens a gateway connection.
type Discord struct {
	session   *discordgo.Session
	channelID string
}

var _ domain.Notifier = (*Discord)(nil)

// NewDiscord creates a Discord notifier.
func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("%w: discord notifier needs token and channel_id", domain.ErrConfig)
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{session: dg, channelID: channelID}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Notify(ctx context.Context, message string) error {
	if _, err := d.session.ChannelMessageSend(d.channelID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}
