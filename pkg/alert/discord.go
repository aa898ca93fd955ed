package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Discord sends digests via Discord webhook.
type Discord struct {
	client     *resty.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{client: newClient(), webhookURL: webhookURL}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	var links []string
	for _, st := range n.Stories {
		links = append(links, fmt.Sprintf("• [%s](%s) (%s)", st.Title, st.URL, st.Origin))
	}

	description := n.Lead.Blurb
	if len(links) > 0 {
		description += "\n\n" + strings.Join(links, "\n")
	}
	// discord rejects embed descriptions over 4096 characters
	if r := []rune(description); len(r) > 4000 {
		description = string(r[:4000]) + "…"
	}

	embed := map[string]any{
		"title":       n.Lead.Title,
		"url":         n.Lead.URL,
		"description": description,
		"color":       0x00A3AD,
		"timestamp":   n.Date.UTC().Format(time.RFC3339),
	}
	payload := map[string]any{
		"content": "**" + n.Subject + "**",
		"embeds":  []map[string]any{embed},
	}
	return post(ctx, d.client.R().SetBody(payload), d.webhookURL, "discord")
}
