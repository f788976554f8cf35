// Package notify posts projection summaries to Slack.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/stageline-io/stageline/internal/tracker"
)

// Notifier posts pipeline notifications to a Slack channel. Notification
// failures are logged and swallowed: the pipeline result never depends on
// Slack being reachable.
type Notifier struct {
	client  *slack.Client
	channel string
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSlackClient overrides the Slack client (used in tests).
func WithSlackClient(c *slack.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// New creates a Notifier. logger may be nil.
func New(token, channel string, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		client:  slack.New(token),
		channel: channel,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ProjectionDone announces the outcome of a projection batch.
func (n *Notifier) ProjectionDone(ctx context.Context, teamID string, sum tracker.Summary) {
	text := fmt.Sprintf("Projected %d ticket(s) to Linear team %s: %d succeeded, %d failed.",
		sum.Total, teamID, sum.Successful, sum.Failed)
	if sum.Failed == 0 {
		text = fmt.Sprintf("Projected %d ticket(s) to Linear team %s, all succeeded.", sum.Total, teamID)
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("slack notification failed", "channel", n.channel, "error", err)
		return
	}
	n.logger.Debug("slack notification sent", "channel", n.channel)
}
