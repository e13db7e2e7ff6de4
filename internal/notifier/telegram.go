package notifier

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// TelegramNotifier sends system alerts to one Telegram chat
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects the bot with token
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	return newTelegram(token, tgbotapi.APIEndpoint, chatID)
}

// NewTelegramNotifierWithEndpoint connects the bot against a custom API endpoint
func NewTelegramNotifierWithEndpoint(token, endpoint string, chatID int64) (*TelegramNotifier, error) {
	return newTelegram(token, endpoint, chatID)
}

func newTelegram(token, endpoint string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

// Notify sends the alert as a Markdown message
func (t *TelegramNotifier) Notify(ctx context.Context, alert models.SystemAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatMessage(alert, "*"))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return nil
}
