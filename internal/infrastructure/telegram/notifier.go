package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ElectionWatch/internal/config"
	"ElectionWatch/internal/domain"
	"ElectionWatch/internal/ports"
)

// Notifier sends alerts to a Telegram chat via bot API.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID string
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier authorises the bot token (one getMe call) and remembers the
// target chat. ChatID is a numeric id or an @channel name.
func NewNotifier(cfg config.TelegramConfig, client *http.Client) (*Notifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return &Notifier{api: api, chatID: cfg.ChatID}, nil
}

// PublishAlert posts a plain-text summary of the alert. The bot library has
// no context support, so ctx is only checked before sending.
func (n *Notifier) PublishAlert(ctx context.Context, alert domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := FormatAlert(alert)
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(n.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(n.chatID, text)
	}
	msg.DisableWebPagePreview = true

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// FormatAlert renders the message body sent to operators.
func FormatAlert(alert domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(alert.Severity)), alert.Title)
	if alert.GeoUnit != "" {
		fmt.Fprintf(&b, "Area: %s\n", alert.GeoUnit)
	}
	if alert.Description != "" {
		b.WriteString(alert.Description)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Type: %s, items: %d, id: %s", alert.Type, len(alert.RelatedItemIDs), alert.ID)
	return b.String()
}
