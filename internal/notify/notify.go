// Package notify tells an operator about events that need a human.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Fi44er/sol_gift/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Kind string

const (
	ProvisionFailed     Kind = "provision_failed"
	SettlementAmbiguous Kind = "settlement_ambiguous"
	VaultUnderfunded    Kind = "vault_underfunded"
)

var titles = map[Kind]string{
	ProvisionFailed:     "🧱 Collection provisioning stopped",
	SettlementAmbiguous: "⏳ Settlement outcome unknown",
	VaultUnderfunded:    "🪫 Vault balance too low",
}

type Event struct {
	Kind    Kind
	Subject string
	Detail  string
	Fields  map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// LogNotifier only writes events to the log; used when no chat is configured.
type LogNotifier struct {
	logger *utils.Logger
}

func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) {
	n.logger.WithField("kind", e.Kind).WithField("subject", e.Subject).Warnf("📣 %s: %s", title(e.Kind), e.Detail)
}

type TelegramNotifier struct {
	API         *tgbotapi.BotAPI
	adminChatID int64
	logger      *utils.Logger
}

func NewTelegramNotifier(api *tgbotapi.BotAPI, adminChatID int64, logger *utils.Logger) *TelegramNotifier {
	return &TelegramNotifier{API: api, adminChatID: adminChatID, logger: logger}
}

// Notify never fails the caller; a message that cannot be delivered is logged instead.
func (n *TelegramNotifier) Notify(_ context.Context, e Event) {
	msg := tgbotapi.NewMessage(n.adminChatID, Format(e))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.API.Send(msg); err != nil {
		n.logger.Errorf("Failed to send %s notification for %s: %v", e.Kind, e.Subject, err)
	}
}

// Format renders an event as a Telegram HTML message.
func Format(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", escape(title(e.Kind)))
	if e.Subject != "" {
		fmt.Fprintf(&b, "🔖 <code>%s</code>\n", escape(e.Subject))
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "%s\n", escape(e.Detail))
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\n")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "• %s: <code>%s</code>\n", escape(k), escape(e.Fields[k]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func title(k Kind) string {
	if t, ok := titles[k]; ok {
		return t
	}
	return string(k)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
