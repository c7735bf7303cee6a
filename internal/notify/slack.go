// Package notify pushes engine and tracker events to Slack.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/forgeloop/forgeloop/internal/config"
	"github.com/forgeloop/forgeloop/internal/improve"
	"github.com/forgeloop/forgeloop/internal/tracker"
)

// postTimeout bounds each Slack API call.
const postTimeout = 10 * time.Second

// slackAPI is the slice of the Slack client the notifier uses. Satisfied
// by *slack.Client; swapped for a fake in tests.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts proposal and rollback events to one Slack channel.
// Delivery is best-effort; failures are logged and dropped.
type SlackNotifier struct {
	api     slackAPI
	channel string
}

// NewSlack builds a notifier from config. Returns nil when the channel is
// disabled or incompletely configured, which callers treat as "no
// notifications".
func NewSlack(cfg config.SlackConfig) *SlackNotifier {
	if !cfg.Enabled || strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.Channel) == "" {
		return nil
	}
	opts := []slack.Option{}
	if base := strings.TrimSpace(cfg.APIURL); base != "" {
		opts = append(opts, slack.OptionAPIURL(base))
	}
	return &SlackNotifier{
		api:     slack.New(cfg.Token, opts...),
		channel: cfg.Channel,
	}
}

// ProposalDelegated implements improve.Notifier.
func (n *SlackNotifier) ProposalDelegated(p *improve.Proposal, agent string) {
	n.post(fmt.Sprintf(":inbox_tray: Proposal *%s* (%s, %s) assigned to `%s`",
		p.Title, p.Kind, p.Priority, agent))
}

// ChangeRolledBack announces a rollback with its reason.
func (n *SlackNotifier) ChangeRolledBack(c *tracker.Change, reason string) {
	n.post(fmt.Sprintf(":rewind: Change `%s` on `%s` rolled back: %s",
		c.ChangeID, c.ArtifactPath, reason))
}

func (n *SlackNotifier) post(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()
	if _, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false)); err != nil {
		slog.Warn("Notify: slack post failed", "channel", n.channel, "error", err)
	}
}
