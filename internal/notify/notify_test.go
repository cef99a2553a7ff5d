package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Fi44er/sol_gift/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	text := Format(Event{
		Kind:    ProvisionFailed,
		Subject: "prov-1",
		Detail:  "step <mint_collection> failed & stopped",
		Fields:  map[string]string{"tree": "Tree111", "step": "mint_collection"},
	})

	assert.Equal(t, strings.Join([]string{
		"<b>🧱 Collection provisioning stopped</b>",
		"",
		"🔖 <code>prov-1</code>",
		"step &lt;mint_collection&gt; failed &amp; stopped",
		"",
		"• step: <code>mint_collection</code>",
		"• tree: <code>Tree111</code>",
	}, "\n"), text)

	assert.Equal(t, "<b>custom</b>", Format(Event{Kind: "custom"}))
}

type telegramServer struct {
	mu       sync.Mutex
	sent     []map[string]string
	sendFail bool
}

func (s *telegramServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"gifts","username":"gifts_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sendFail {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
			return
		}
		s.sent = append(s.sent, map[string]string{
			"chat_id":    r.PostForm.Get("chat_id"),
			"text":       r.PostForm.Get("text"),
			"parse_mode": r.PostForm.Get("parse_mode"),
		})
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func newTelegram(t *testing.T) (*TelegramNotifier, *telegramServer) {
	t.Helper()
	backend := &telegramServer{}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	api, err := tgbotapi.NewBotAPIWithClient("token", server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)
	return NewTelegramNotifier(api, 42, utils.NopLogger()), backend
}

func TestTelegramNotifierSendsToAdminChat(t *testing.T) {
	n, backend := newTelegram(t)

	event := Event{Kind: SettlementAmbiguous, Subject: "link-1", Fields: map[string]string{"signature": "5xyz"}}
	n.Notify(context.Background(), event)

	require.Len(t, backend.sent, 1)
	assert.Equal(t, "42", backend.sent[0]["chat_id"])
	assert.Equal(t, tgbotapi.ModeHTML, backend.sent[0]["parse_mode"])
	assert.Equal(t, Format(event), backend.sent[0]["text"])
}

func TestTelegramNotifierSwallowsDeliveryErrors(t *testing.T) {
	n, backend := newTelegram(t)
	backend.sendFail = true

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), Event{Kind: VaultUnderfunded, Subject: "vault"})
	})
	assert.Empty(t, backend.sent)
}
