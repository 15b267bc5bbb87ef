package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender posts alerts to an operator chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender authenticates against the Bot API.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send posts the message to the operator chat.
func (s *TelegramSender) Send(_ context.Context, message string) error {
	msg := tgbotapi.NewMessage(s.chatID, message)
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// LogSender writes alerts to the process log. The fallback channel when
// no Telegram credentials are configured.
type LogSender struct {
	Print func(message string)
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, message string) error {
	if s.Print != nil {
		s.Print(message)
	}
	return nil
}
