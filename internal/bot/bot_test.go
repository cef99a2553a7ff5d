package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminChat = 42

type sentMessage struct {
	chatID string
	text   string
}

type telegramServer struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *telegramServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"ops","username":"ops_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		s.mu.Lock()
		s.sent = append(s.sent, sentMessage{chatID: r.PostForm.Get("chat_id"), text: r.PostForm.Get("text")})
		s.mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func (s *telegramServer) last(t *testing.T) sentMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.sent)
	return s.sent[len(s.sent)-1]
}

type stubOps struct {
	reconciled int
	link       *models.Link
}

func (o *stubOps) Status(context.Context) (*service.OperatorStatus, error) {
	return &service.OperatorStatus{
		Vault:    "Vault111",
		Balances: map[models.Network]uint64{models.NetworkDevnet: 2_500_000_000},
		Links: []models.Link{{
			ID: "link-1", Status: models.LinkSettling, Amount: decimal.RequireFromString("1.5"), Symbol: "SOL",
		}},
	}, nil
}

func (o *stubOps) Reconcile(context.Context) service.ReconcileReport {
	o.reconciled++
	return service.ReconcileReport{Finalized: 2, Released: 1}
}

func (o *stubOps) GetLink(_ context.Context, id string) (*models.Link, error) {
	if o.link == nil || o.link.ID != id {
		return nil, service.ErrLinkNotFound
	}
	return o.link, nil
}

func newTestBot(t *testing.T, ops Operations) (*Bot, *telegramServer) {
	t.Helper()
	backend := &telegramServer{}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	api, err := tgbotapi.NewBotAPIWithClient("token", server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)
	return NewBot(api, ops, adminChat, utils.NopLogger()), backend
}

func message(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: chatID},
	}}
}

func TestOnlyOperatorIsServed(t *testing.T) {
	ops := &stubOps{}
	b, backend := newTestBot(t, ops)

	b.HandleUpdate(context.Background(), message(7, "/reconcile"))
	assert.Zero(t, ops.reconciled)
	reply := backend.last(t)
	assert.Equal(t, "7", reply.chatID)
	assert.Contains(t, reply.text, "only answers its operator")

	b.HandleUpdate(context.Background(), message(adminChat, buttonReconcile))
	assert.Equal(t, 1, ops.reconciled)
	reply = backend.last(t)
	assert.Equal(t, "42", reply.chatID)
	assert.Contains(t, reply.text, "Finalized: 2")
	assert.Contains(t, reply.text, "Released: 1")
}

func TestStatusCommand(t *testing.T) {
	b, backend := newTestBot(t, &stubOps{})

	b.HandleUpdate(context.Background(), message(adminChat, "/status"))
	text := backend.last(t).text
	assert.Contains(t, text, "<code>Vault111</code>")
	assert.Contains(t, text, "• devnet: 2.5 SOL")
	assert.Contains(t, text, "In-flight links:</b> 1")
	assert.Contains(t, text, "<code>link-1</code> settling 1.5 SOL")
	assert.Contains(t, text, "Pending mints:</b> 0")
}

func TestLinkCommand(t *testing.T) {
	claimer := "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	ops := &stubOps{link: &models.Link{
		ID:               "link-1",
		Network:          models.NetworkDevnet,
		Amount:           decimal.NewFromInt(3),
		Symbol:           "USDC",
		Status:           models.LinkClaimed,
		DepositTxRef:     "deposit-sig",
		ClaimedByAddress: &claimer,
	}}
	b, backend := newTestBot(t, ops)

	b.HandleUpdate(context.Background(), message(adminChat, "/link link-1"))
	text := backend.last(t).text
	assert.Contains(t, text, "Amount: 3 USDC (devnet)")
	assert.Contains(t, text, "Claimed by: <code>"+claimer+"</code>")

	b.HandleUpdate(context.Background(), message(adminChat, "/link missing"))
	assert.Equal(t, "🔍 No such link.", backend.last(t).text)

	b.HandleUpdate(context.Background(), message(adminChat, "/link"))
	assert.Equal(t, "Usage: /link &lt;id&gt;", backend.last(t).text)
}
