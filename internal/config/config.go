package config

import (
	"time"
)

type Config struct {
	Notifications *NotificationConfig   `yaml:"notifications"`
	Deployments   map[string]Deployment `yaml:"deployments"`
}

type NotificationConfig struct {
	Slack    *SlackConfig    `yaml:"slack"`
	Telegram *TelegramConfig `yaml:"telegram"`
	AMQP     *AMQPConfig     `yaml:"amqp"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

type Deployment struct {
	Path    string            `yaml:"path"`
	Timeout time.Duration     `yaml:"timeout"`
	Env     map[string]string `yaml:"env"`
	Steps   []Step            `yaml:"steps"`
}

type Step struct {
	Name    string        `yaml:"name"`
	Run     string        `yaml:"run"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether every field required to post to Slack is set.
func (c *SlackConfig) Enabled() bool {
	return c != nil && c.WebhookURL != "" && c.Channel != ""
}

func (c *TelegramConfig) Enabled() bool {
	return c != nil && c.BotToken != "" && c.ChatID != ""
}

// Enabled reports whether the broker URL and a publish target are set.
// Publishing to the default exchange only needs a routing key.
func (c *AMQPConfig) Enabled() bool {
	return c != nil && c.URL != "" && (c.Exchange != "" || c.RoutingKey != "")
}

// Lookup returns the deployment configured for app.
func (c *Config) Lookup(app string) (d Deployment, ok bool) {
	if c == nil || c.Deployments == nil {
		return
	}
	d, ok = c.Deployments[app]
	return
}

// StepTimeout resolves the effective timeout of a step. Zero means unbounded.
func (d Deployment) StepTimeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	return d.Timeout
}

// EnabledChannels lists the notification channel names that are fully configured.
func (c *Config) EnabledChannels() (names []string) {
	names = []string{}
	if c == nil || c.Notifications == nil {
		return
	}
	n := c.Notifications
	if n.Slack.Enabled() {
		names = append(names, "slack")
	}
	if n.Telegram.Enabled() {
		names = append(names, "telegram")
	}
	if n.AMQP.Enabled() {
		names = append(names, "amqp")
	}
	return
}
