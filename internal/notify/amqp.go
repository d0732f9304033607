package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/eteu-technologies/hook-deployer/internal/message"
)

// AMQP publishes every notification as a JSON message.Notification.
//
// With an empty Exchange the message goes through the default exchange to the
// queue named by RoutingKey, which is declared on demand.
type AMQP struct {
	URL        string
	Exchange   string
	RoutingKey string
}

func (a *AMQP) Name() string { return "amqp" }

// dial bounds both the TCP connect and the protocol handshake by ctx. The
// connection deadline is cleared by the client once the handshake completes.
func (a *AMQP) dial(ctx context.Context) (*amqp.Connection, error) {
	return amqp.DialConfig(a.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}

			deadline, ok := ctx.Deadline()
			if !ok {
				deadline = time.Now().Add(DefaultTimeout)
			}
			if err := conn.SetDeadline(deadline); err != nil {
				conn.Close()
				return nil, err
			}
			return conn, nil
		},
	})
}

// Send publishes text and returns once the broker accepted it or ctx is done.
// A broker that stalls after the handshake has its connection closed.
func (a *AMQP) Send(ctx context.Context, text string) error {
	var (
		mu     sync.Mutex
		conn   *amqp.Connection
		closed bool
	)
	track := func(c *amqp.Connection) bool {
		mu.Lock()
		defer mu.Unlock()
		conn = c
		return !closed
	}

	done := make(chan error, 1)
	go func() { done <- a.publish(ctx, text, track) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		mu.Lock()
		closed = true
		if conn != nil {
			_ = conn.Close()
		}
		mu.Unlock()
		return fmt.Errorf("amqp: %w", ctx.Err())
	}
}

func (a *AMQP) publish(ctx context.Context, text string, track func(*amqp.Connection) bool) (err error) {
	now := time.Now().UTC()

	var data []byte
	if data, err = json.Marshal(message.Notification{Text: text, SentAt: now}); err != nil {
		return
	}

	var conn *amqp.Connection
	var ch *amqp.Channel

	if conn, err = a.dial(ctx); err != nil {
		err = fmt.Errorf("amqp: failed to connect to broker: %w", err)
		return
	}
	defer conn.Close()

	if !track(conn) {
		err = fmt.Errorf("amqp: %w", ctx.Err())
		return
	}

	if ch, err = conn.Channel(); err != nil {
		err = fmt.Errorf("amqp: failed to open a channel: %w", err)
		return
	}
	defer ch.Close()

	if a.Exchange == "" {
		if _, err = ch.QueueDeclare(a.RoutingKey, false, true, false, false, nil); err != nil {
			err = fmt.Errorf("amqp: failed to declare a queue: %w", err)
			return
		}
	}

	err = ch.Publish(a.Exchange, a.RoutingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		Body:         data,
	})
	if err != nil {
		err = fmt.Errorf("amqp: failed to publish a message: %w", err)
		return
	}

	return
}
