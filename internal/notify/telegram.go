package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// Telegram sends bot messages through the Bot API.
type Telegram struct {
	BotToken string
	ChatID   string
	// BaseURL overrides the Bot API host; empty means api.telegram.org.
	BaseURL string
	HTTP    *http.Client
}

type telegramSendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) endpoint() string {
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = telegramAPI
	}
	return fmt.Sprintf("%s/bot%s/sendMessage", base, url.PathEscape(t.BotToken))
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	payload := telegramSendMessage{ChatID: t.ChatID, Text: message, ParseMode: "HTML"}
	if err := postJSON(ctx, t.HTTP, t.endpoint(), payload); err != nil {
		// url.Error carries the endpoint, which embeds the bot token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("telegram: %w", uerr.Err)
		}
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}
