package service

import (
	"context"
	"time"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/notify"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/settlement"
	"github.com/Fi44er/sol_gift/internal/treeplan"
	"github.com/Fi44er/sol_gift/internal/verifier"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
)

type Service struct {
	repo        Repository
	verifier    DepositVerifier
	settler     Settler
	provisioner CollectionProvisioner
	pool        *ledger.Pool
	notifier    notify.Notifier
	opts        Options
	logger      *utils.Logger
	now         func() time.Time
}

type Repository interface {
	EnsureUser(ctx context.Context, address string) (*models.User, error)
	CreateNonce(ctx context.Context, nonce *models.AuthNonce) error
	ConsumeNonce(ctx context.Context, nonce string, now time.Time) (bool, error)
	PurgeExpiredNonces(ctx context.Context, now time.Time) (int64, error)

	CreateLink(ctx context.Context, link *models.Link) error
	GetLink(ctx context.Context, id string) (*models.Link, error)
	ListLinksByCreator(ctx context.Context, address string) ([]models.Link, error)
	BeginSettlement(ctx context.Context, id, attempt string, to models.LinkStatus, recipient string, now time.Time) (bool, error)
	SetLinkPendingTx(ctx context.Context, id, attempt, signature string, now time.Time) error
	CompleteClaim(ctx context.Context, id, attempt, claimer, signature string, at time.Time) (bool, error)
	ReleaseSettlement(ctx context.Context, id, attempt string, pendingTx *string) (bool, error)
	DeleteRefundedLink(ctx context.Context, id, attempt string) (bool, error)
	ListInFlightLinks(ctx context.Context) ([]models.Link, error)

	CreateCandyMachineLink(ctx context.Context, link *models.CandyMachineLink) error
	GetCandyMachineLink(ctx context.Context, id string) (*models.CandyMachineLink, error)
	GetCandyMachineLinkByAddress(ctx context.Context, address string) (*models.CandyMachineLink, error)
	ReserveClaim(ctx context.Context, linkID, claimerAddress string, now time.Time) (*models.Claimer, error)
	SetClaimPendingTx(ctx context.Context, claimerID uint, signature string, now time.Time) error
	CompleteMint(ctx context.Context, claimerID uint, signature string, at time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, claimer *models.Claimer) (bool, error)
	ListPendingClaims(ctx context.Context) ([]models.Claimer, error)

	CreateProvision(ctx context.Context, p *models.CollectionProvision) error
	GetProvision(ctx context.Context, id string) (*models.CollectionProvision, error)
	GetProvisionByTree(ctx context.Context, tree string) (*models.CollectionProvision, error)
	SaveProvision(ctx context.Context, p *models.CollectionProvision) error
	AcquireProvisionLease(ctx context.Context, id, runner string, now, until time.Time) (bool, error)
	ReleaseProvisionLease(ctx context.Context, id, runner string) error

	Ping(ctx context.Context) error
}

type DepositVerifier interface {
	VerifyDeposit(ctx context.Context, d verifier.Deposit) error
}

type Settler interface {
	Vault() solana.PublicKey
	Transfer(ctx context.Context, t settlement.Transfer) (solana.Signature, error)
}

type CollectionProvisioner interface {
	Planner() *treeplan.Planner
	Run(ctx context.Context, prov *models.CollectionProvision) error
	MintLeaf(ctx context.Context, prov *models.CollectionProvision, leaf provisioner.Leaf) (solana.Signature, error)
}

type Options struct {
	DefaultNetwork models.Network
	JWTSecret      []byte
	SessionTTL     time.Duration
	NonceTTL       time.Duration
	// ReleaseAfter is how long an in-flight settlement with no observable outcome
	// is kept before the reconciler gives it up. It must exceed the blockhash lifetime.
	ReleaseAfter time.Duration
	// ProvisionLease bounds how long a runner may hold a provision before another may take it over.
	ProvisionLease time.Duration
}

func (o Options) withDefaults() Options {
	if o.DefaultNetwork == "" {
		o.DefaultNetwork = models.NetworkDevnet
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 24 * time.Hour
	}
	if o.NonceTTL <= 0 {
		o.NonceTTL = 5 * time.Minute
	}
	if o.ReleaseAfter < 2*time.Minute {
		o.ReleaseAfter = 2 * time.Minute
	}
	if o.ProvisionLease <= 0 {
		o.ProvisionLease = 15 * time.Minute
	}
	return o
}

func NewService(
	repo Repository,
	depositVerifier DepositVerifier,
	settler Settler,
	collections CollectionProvisioner,
	pool *ledger.Pool,
	notifier notify.Notifier,
	opts Options,
	logger *utils.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Service{
		repo:        repo,
		verifier:    depositVerifier,
		settler:     settler,
		provisioner: collections,
		pool:        pool,
		notifier:    notifier,
		opts:        opts.withDefaults(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) VaultAddress() string {
	return s.settler.Vault().String()
}

func (s *Service) Ready(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return err
	}
	return s.pool.Healthy(ctx)
}

func (s *Service) network(n models.Network) (models.Network, error) {
	if n == "" {
		return s.opts.DefaultNetwork, nil
	}
	if !models.ValidNetworks[n] {
		return "", invalidf("unknown network %q", n)
	}
	return n, nil
}

// detached keeps record-store writes that follow a ledger effect alive after the caller goes away.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
