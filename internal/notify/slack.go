package notify

import (
	"context"
	"fmt"
	"net/http"
)

// Slack posts to an incoming chat webhook.
type Slack struct {
	WebhookURL string
	Channel    string
	HTTP       *http.Client
}

type slackMessage struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, message string) error {
	if err := postJSON(ctx, s.HTTP, s.WebhookURL, slackMessage{Channel: s.Channel, Text: message}); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}
