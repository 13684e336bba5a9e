package notify

import (
	"context"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/sitedesk/foreman/internal/agent"
)

// SlackAPI abstracts the subset of the Slack client used by the notifier.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackNotifier posts escalation notes to a Slack channel when an agent
// parks work for human review. Delivery is best effort: a failed post is
// logged and never interrupts the run that raised it.
type SlackNotifier struct {
	api     SlackAPI
	channel string
}

// Compile-time interface check.
var _ agent.Escalator = (*SlackNotifier)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlack creates a SlackNotifier from a bot token and target channel.
func NewSlack(token, channel string) *SlackNotifier {
	return NewSlackWithAPI(slacklib.New(token), channel)
}

// NewSlackWithAPI creates a SlackNotifier with the given API client.
func NewSlackWithAPI(api SlackAPI, channel string) *SlackNotifier {
	return &SlackNotifier{api: api, channel: channel}
}

// Escalate posts the note to the configured channel.
func (n *SlackNotifier) Escalate(ctx context.Context, text string) {
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slacklib.MsgOptionText(text, false),
	)
	if err != nil {
		log.Error().Err(err).Str("channel", n.channel).
			Msg("notify.SlackNotifier.Escalate: post failed")
	}
}
