//go:build slack

package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/Travbz/doc-smith/internal/domain"
)

// SlackOption configures the Slack notifier.
type SlackOption func(*[]slack.Option)

// WithSlackAPIURL points the client at another API endpoint.
func WithSlackAPIURL(url string) SlackOption {
	return func(o *[]slack.Option) { *o = append(*o, slack.OptionAPIURL(url)) }
}

// Slack posts messages to one Slack channel with a bot token.
type Slack struct {
	api     *slack.Client
	channel string
}

var _ domain.Notifier = (*Slack)(nil)

// NewSlack creates a Slack notifier.
func NewSlack(token, channel string, opts ...SlackOption) (*Slack, error) {
	if token == "" || channel == "" {
		return nil, fmt.Errorf("%w: slack notifier needs token and channel", domain.ErrConfig)
	}
	var sopts []slack.Option
	for _, o := range opts {
		o(&sopts)
	}
	return &Slack{api: slack.New(token, sopts...), channel: channel}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Notify(ctx context.Context, message string) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}
