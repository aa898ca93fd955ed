package alert

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Slack sends digests via Slack incoming webhook.
type Slack struct {
	client     *resty.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{client: newClient(), webhookURL: webhookURL}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n *Notification) error {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": n.Subject},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*<%s|%s>*\n%s", n.Lead.URL, n.Lead.Title, n.Lead.Blurb),
			},
		},
	}

	if len(n.Stories) > 0 {
		blocks = append(blocks, map[string]any{"type": "divider"})
		for _, st := range n.Stories {
			blocks = append(blocks, map[string]any{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("<%s|%s> _%s_\n%s", st.URL, st.Title, st.Origin, st.Blurb),
				},
			})
		}
	}

	payload := map[string]any{"text": n.Subject, "blocks": blocks}
	return post(ctx, s.client.R().SetBody(payload), s.webhookURL, "slack")
}
