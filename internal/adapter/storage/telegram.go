package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/domain"
)

// Bot API document uploads are capped at 50 MB.
const telegramMaxFileSize = 50 * 1024 * 1024

// TelegramStorage sends the artifact as a document to a chat.
type TelegramStorage struct {
	cfg config.TargetConfig
}

func NewTelegram(cfg config.TargetConfig) *TelegramStorage {
	return &TelegramStorage{cfg: cfg}
}

func (t *TelegramStorage) Name() string { return t.cfg.Name }
func (t *TelegramStorage) Type() string { return "telegram" }

// bot authenticates per call; NewBotAPI performs a getMe round trip.
func (t *TelegramStorage) bot() (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(t.cfg.BotToken)
	if err != nil {
		kind := domain.ErrConnect
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			kind = domain.ErrAuth
		}
		return nil, domain.NewTargetError(t.cfg.Name, kind, fmt.Errorf("failed to create telegram bot: %w", err))
	}
	return bot, nil
}

func (t *TelegramStorage) Upload(ctx context.Context, localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return domain.NewTargetError(t.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to stat file: %w", err))
	}
	if info.Size() > telegramMaxFileSize {
		return domain.NewTargetError(t.cfg.Name, domain.ErrTransfer,
			fmt.Errorf("file is %.2f MB, telegram accepts at most 50 MB", float64(info.Size())/(1024*1024)))
	}

	bot, err := t.bot()
	if err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(t.cfg.ChatID, tgbotapi.FilePath(localPath))
	doc.Caption = fmt.Sprintf("📦 Backup: %s (%.2f MB)", filepath.Base(localPath), float64(info.Size())/(1024*1024))

	if _, err := bot.Send(doc); err != nil {
		return domain.NewTargetError(t.cfg.Name, domain.ErrTransfer, fmt.Errorf("failed to send telegram file: %w", err))
	}

	return nil
}

func (t *TelegramStorage) TestConnection(ctx context.Context) error {
	_, err := t.bot()
	return err
}
