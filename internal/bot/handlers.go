package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/internal/tokens"
	"github.com/Fi44er/sol_gift/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.withAdminCheck(func(ctx context.Context, msg *tgbotapi.Message) {
		fields := strings.Fields(msg.Text)
		if len(fields) == 0 {
			return
		}
		b.logger.Infof("Operator command: %s", msg.Text)

		switch fields[0] {
		case "/start":
			b.sendMessage(msg.Chat.ID, "👋 Operator console. Use the menu or /link &lt;id&gt;.", GetMainMenu())
		case "/status", buttonStatus:
			b.handleStatus(ctx, msg.Chat.ID)
		case "/reconcile", buttonReconcile:
			b.handleReconcile(ctx, msg.Chat.ID)
		case "/link":
			if len(fields) < 2 {
				b.sendMessage(msg.Chat.ID, "Usage: /link &lt;id&gt;", nil)
				return
			}
			b.handleLink(ctx, msg.Chat.ID, fields[1])
		default:
			b.sendMessage(msg.Chat.ID, "Unknown command. Use the menu.", GetMainMenu())
		}
	})(ctx, update)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	status, err := b.ops.Status(ctx)
	if err != nil {
		b.logger.Errorf("Failed to collect status: %v", err)
		b.sendMessage(chatID, "❌ Could not collect status. Check the logs.", nil)
		return
	}
	b.sendMessage(chatID, formatStatus(status), nil)
}

func (b *Bot) handleReconcile(ctx context.Context, chatID int64) {
	report := b.ops.Reconcile(ctx)
	b.sendMessage(chatID, fmt.Sprintf(
		"🔁 <b>Reconciled</b>\n\nFinalized: %d\nReleased: %d\nWaiting: %d\nErrors: %d\nExpired nonces: %d",
		report.Finalized, report.Released, report.Waiting, report.Errors, report.Nonces,
	), nil)
}

func (b *Bot) handleLink(ctx context.Context, chatID int64, id string) {
	link, err := b.ops.GetLink(ctx, id)
	if errors.Is(err, service.ErrLinkNotFound) {
		b.sendMessage(chatID, "🔍 No such link.", nil)
		return
	}
	if err != nil {
		b.logger.Errorf("Failed to load link %s: %v", id, err)
		b.sendMessage(chatID, "❌ Could not load the link.", nil)
		return
	}
	b.sendMessage(chatID, formatLink(link), nil)
}

func formatStatus(s *service.OperatorStatus) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 <b>Vault</b> <code>%s</code>\n", escape(s.Vault))
	if len(s.Balances) == 0 {
		sb.WriteString("No network answered.\n")
	}
	for _, network := range []models.Network{models.NetworkMainnet, models.NetworkDevnet, models.NetworkTestnet} {
		lamports, ok := s.Balances[network]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "• %s: %s SOL\n", network, tokens.FromMinorUnits(lamports, models.NativeDecimals))
	}

	fmt.Fprintf(&sb, "\n⏳ <b>In-flight links:</b> %d\n", len(s.Links))
	for _, l := range s.Links {
		fmt.Fprintf(&sb, "• <code>%s</code> %s %s %s\n", l.ID, l.Status, l.Amount, escape(l.Symbol))
	}
	fmt.Fprintf(&sb, "\n🖼 <b>Pending mints:</b> %d\n", len(s.Claims))
	for _, c := range s.Claims {
		fmt.Fprintf(&sb, "• <code>%s</code> → %s\n", c.LinkID, utils.MaskShort(c.ClaimerAddress))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatLink(l *models.Link) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎁 <b>Link</b> <code>%s</code>\n", l.ID)
	fmt.Fprintf(&sb, "Amount: %s %s (%s)\n", l.Amount, escape(l.Symbol), l.Network)
	fmt.Fprintf(&sb, "Status: %s\n", l.Status)
	fmt.Fprintf(&sb, "Creator: <code>%s</code>\n", l.CreatedByAddress)
	fmt.Fprintf(&sb, "Deposit: <code>%s</code>", l.DepositTxRef)
	if l.ClaimedByAddress != nil {
		fmt.Fprintf(&sb, "\nClaimed by: <code>%s</code>", *l.ClaimedByAddress)
	}
	if l.ClaimTxRef != nil {
		fmt.Fprintf(&sb, "\nClaim tx: <code>%s</code>", *l.ClaimTxRef)
	}
	return sb.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
