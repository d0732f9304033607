// Package message defines the JSON payloads exchanged with external parties.
package message

import "time"

// Notification is the envelope published to AMQP for every notification.
type Notification struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Trigger is the body run-deploy signs and posts to the webhook endpoint.
type Trigger struct {
	App  string            `json:"app"`
	Data map[string]string `json:"data,omitempty"`
}
