package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dumpvault/internal/config"
)

type TelegramChannel struct {
	cfg config.TelegramConfig
}

func NewTelegram(cfg config.TelegramConfig) *TelegramChannel {
	return &TelegramChannel{cfg: cfg}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, subject, body string) error {
	bot, err := tgbotapi.NewBotAPI(c.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	if _, err := bot.Send(tgbotapi.NewMessage(c.cfg.ChatID, body)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func (c *TelegramChannel) TestConnection(ctx context.Context) error {
	if _, err := tgbotapi.NewBotAPI(c.cfg.BotToken); err != nil {
		return fmt.Errorf("telegram bot unreachable: %w", err)
	}
	return nil
}
