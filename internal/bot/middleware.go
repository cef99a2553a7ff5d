package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) isAdmin(chatID int64) bool {
	return b.adminChatID != 0 && chatID == b.adminChatID
}

func (b *Bot) withAdminCheck(handler func(context.Context, *tgbotapi.Message)) func(context.Context, tgbotapi.Update) {
	return func(ctx context.Context, update tgbotapi.Update) {
		msg := update.Message
		if msg.Chat == nil {
			return
		}
		if !b.isAdmin(msg.Chat.ID) {
			b.logger.Warnf("⛔ Ignoring command from chat %d", msg.Chat.ID)
			b.sendMessage(msg.Chat.ID, "⛔ This bot only answers its operator.", nil)
			return
		}
		handler(ctx, msg)
	}
}
