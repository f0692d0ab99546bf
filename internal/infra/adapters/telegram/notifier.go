package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"installment-engine/internal/config"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/infra/i18n"
)

var _ adapter.Notifier = (*BotNotifier)(nil)

// sender is the slice of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotNotifier posts every notification to one operations chat.
type BotNotifier struct {
	bot    sender
	chatID int64
	tr     *i18n.Translator // nil renders the plain form
}

func NewBotNotifier(cfg *config.NotifyConfig, tr *i18n.Translator) (*BotNotifier, error) {
	if cfg == nil || cfg.Telegram.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.Telegram.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &BotNotifier{bot: bot, chatID: cfg.Telegram.ChatID, tr: tr}, nil
}

func (n *BotNotifier) Notify(ctx context.Context, msg model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(n.chatID, n.tr.Notification(msg))
	m.DisableWebPagePreview = true
	if _, err := n.bot.Send(m); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
