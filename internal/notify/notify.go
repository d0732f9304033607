// Package notify broadcasts deployment progress to the configured channels.
//
// Delivery is best effort: every channel is attempted in turn, a failing
// channel is logged and skipped, and nothing is retried or queued.
package notify

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eteu-technologies/hook-deployer/internal/config"
	"github.com/eteu-technologies/hook-deployer/internal/metrics"
)

//go:generate mockgen -destination=mocks/mock_channel.go -package=mocks github.com/eteu-technologies/hook-deployer/internal/notify Channel

// DefaultTimeout bounds a single channel delivery attempt.
const DefaultTimeout = 10 * time.Second

// Channel is one notification delivery mechanism.
type Channel interface {
	Name() string
	Send(ctx context.Context, message string) error
}

type Notifier struct {
	channels []Channel
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// New returns a Notifier over a fixed list of channels.
func New(channels []Channel, logger *zap.Logger, m *metrics.Metrics) *Notifier {
	if logger == nil {
		logger = zap.L()
	}
	return &Notifier{
		channels: channels,
		timeout:  DefaultTimeout,
		logger:   logger.Named("notify"),
		metrics:  m,
	}
}

// FromConfig builds the channels that are fully configured in cfg.
// A nil cfg yields a Notifier with no channels.
func FromConfig(cfg *config.NotificationConfig, client *http.Client, logger *zap.Logger, m *metrics.Metrics) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	channels := []Channel{}
	if cfg != nil {
		if cfg.Slack.Enabled() {
			channels = append(channels, &Slack{
				WebhookURL: cfg.Slack.WebhookURL,
				Channel:    cfg.Slack.Channel,
				HTTP:       client,
			})
		}
		if cfg.Telegram.Enabled() {
			channels = append(channels, &Telegram{
				BotToken: cfg.Telegram.BotToken,
				ChatID:   cfg.Telegram.ChatID,
				HTTP:     client,
			})
		}
		if cfg.AMQP.Enabled() {
			channels = append(channels, &AMQP{
				URL:        cfg.AMQP.URL,
				Exchange:   cfg.AMQP.Exchange,
				RoutingKey: cfg.AMQP.RoutingKey,
			})
		}
	}

	return New(channels, logger, m)
}

// Channels returns the names of the channels in delivery order.
func (n *Notifier) Channels() (names []string) {
	names = make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return
}

// Notify sends message to every channel. It never fails; delivery errors are
// logged and counted.
func (n *Notifier) Notify(ctx context.Context, message string) {
	for _, ch := range n.channels {
		err := n.send(ctx, ch, message)
		n.metrics.ObserveNotification(ch.Name(), err)
		if err != nil {
			n.logger.Warn("notification failed", zap.String("channel", ch.Name()), zap.Error(err))
			continue
		}
		n.logger.Debug("notification sent", zap.String("channel", ch.Name()))
	}
}

func (n *Notifier) send(ctx context.Context, ch Channel, message string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("notification channel panicked", zap.String("channel", ch.Name()), zap.Any("panic", r))
			err = errPanic
		}
	}()

	return ch.Send(ctx, message)
}
