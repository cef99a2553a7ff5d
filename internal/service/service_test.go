package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/ledger/ledgertest"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/notify"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/repository"
	"github.com/Fi44er/sol_gift/internal/settlement"
	"github.com/Fi44er/sol_gift/internal/testdb"
	"github.com/Fi44er/sol_gift/internal/treeplan"
	"github.com/Fi44er/sol_gift/internal/verifier"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	fake     *ledgertest.FakeRPC
	repo     *repository.Repository
	pool     *ledger.Pool
	svc      *Service
	vault    solana.PrivateKey
	creator  solana.PrivateKey
	events   *recorder
	deposits int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := ledgertest.NewFakeRPC()
	vault, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	creator, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	log := utils.NopLogger()
	repo := repository.NewRepository(testdb.Open(t), log)
	pool := ledger.NewPool(models.NetworkDevnet, map[models.Network]*ledger.Client{
		models.NetworkDevnet: ledgertest.NewClient(fake),
	})
	events := &recorder{}
	svc := NewService(
		repo,
		verifier.New(pool, log),
		settlement.NewExecutor(pool, vault, log),
		provisioner.New(pool, repo, vault, treeplan.NewDefaultPlanner(), log),
		pool,
		events,
		Options{JWTSecret: []byte("test-secret")},
		log,
	)
	fake.SetBalance(vault.PublicKey(), 100_000_000_000)

	return &fixture{fake: fake, repo: repo, pool: pool, svc: svc, vault: vault, creator: creator, events: events}
}

// peer is a second service instance over the same database and ledger, as another process would be.
func (f *fixture) peer() *Service {
	log := utils.NopLogger()
	return NewService(
		f.repo,
		verifier.New(f.pool, log),
		settlement.NewExecutor(f.pool, f.vault, log),
		provisioner.New(f.pool, f.repo, f.vault, treeplan.NewDefaultPlanner(), log),
		f.pool,
		f.events,
		Options{JWTSecret: []byte("test-secret")},
		log,
	)
}

func (f *fixture) identity() SessionIdentity {
	return SessionIdentity{Address: f.creator.PublicKey().String()}
}

// deposit records a confirmed transfer of lamports from the creator to the vault.
func (f *fixture) deposit(t *testing.T, lamports uint64) string {
	t.Helper()
	f.deposits++
	ix := system.NewTransferInstruction(lamports, f.creator.PublicKey(), f.vault.PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{byte(f.deposits)}, solana.TransactionPayer(f.creator.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &f.creator })
	require.NoError(t, err)

	pre := make([]uint64, len(tx.Message.AccountKeys))
	post := make([]uint64, len(tx.Message.AccountKeys))
	for i, k := range tx.Message.AccountKeys {
		if k.Equals(f.vault.PublicKey()) {
			post[i] = lamports
		}
	}
	sig, err := f.fake.AddReceipt(tx, rpc.TransactionMeta{PreBalances: pre, PostBalances: post})
	require.NoError(t, err)
	return sig.String()
}

func (f *fixture) createLink(t *testing.T, amount string) *models.Link {
	t.Helper()
	link, err := f.svc.CreateLink(context.Background(), f.identity(), CreateLinkRequest{
		Amount:       decimal.RequireFromString(amount),
		Token:        "SOL",
		DepositTxSig: f.deposit(t, 1_000_000_000),
		Address:      f.identity().Address,
		Message:      "happy birthday",
	})
	require.NoError(t, err)
	return link
}

func (f *fixture) storedLink(t *testing.T, id string) *models.Link {
	t.Helper()
	link, err := f.repo.GetLink(context.Background(), id)
	require.NoError(t, err)
	return link
}

func (f *fixture) transfersTo(to solana.PublicKey) []ledgertest.Transfer {
	var out []ledgertest.Transfer
	for _, tx := range f.fake.LandedTransactions() {
		for _, tr := range ledgertest.Transfers(tx) {
			if tr.Destination.Equals(to) {
				out = append(out, tr)
			}
		}
	}
	return out
}

func (f *fixture) settle(sig string) {
	f.fake.SetStatus(solana.MustSignatureFromBase58(sig), &rpc.SignatureStatusesResult{
		ConfirmationStatus: rpc.ConfirmationStatusFinalized,
	})
}

func newWallet() string {
	return solana.NewWallet().PublicKey().String()
}

func afterReleaseWindow(s *Service) {
	s.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
}
