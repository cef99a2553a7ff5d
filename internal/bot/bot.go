// Package bot is the operator console: a Telegram bot that answers only the admin chat.
package bot

import (
	"context"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	buttonStatus    = "📊 Status"
	buttonReconcile = "🔁 Reconcile"
)

type Operations interface {
	Status(ctx context.Context) (*service.OperatorStatus, error)
	Reconcile(ctx context.Context) service.ReconcileReport
	GetLink(ctx context.Context, id string) (*models.Link, error)
}

type Bot struct {
	API         *tgbotapi.BotAPI
	ops         Operations
	adminChatID int64
	logger      *utils.Logger
}

func NewBot(api *tgbotapi.BotAPI, ops Operations, adminChatID int64, logger *utils.Logger) *Bot {
	return &Bot{
		API:         api,
		ops:         ops,
		adminChatID: adminChatID,
		logger:      logger,
	}
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Starting operator bot...")
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.API.GetUpdatesChan(cfg)

	go func() {
		<-ctx.Done()
		b.API.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message != nil {
			b.HandleUpdate(ctx, update)
		}
	}
	b.logger.Info("Operator bot stopped")
}

func GetMainMenu() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonStatus),
			tgbotapi.NewKeyboardButton(buttonReconcile),
		),
	)
}

func (b *Bot) sendMessage(chatID int64, text string, replyMarkup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}
	if _, err := b.API.Send(msg); err != nil {
		b.logger.Errorf("Failed to send message: %v", err)
	}
}
