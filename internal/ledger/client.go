package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrReceiptNotFound = errors.New("transaction receipt not found")
	// ErrSubmissionFailed means no attempt reached the ledger; retrying with a fresh blockhash is safe.
	ErrSubmissionFailed = errors.New("transaction submission failed")
	// ErrTransactionFailed means the transaction landed and the runtime rejected it.
	ErrTransactionFailed = errors.New("transaction failed on ledger")
	// ErrConfirmationTimeout means the outcome is unknown; re-query the signature before retrying.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// AmbiguousError carries the signature whose outcome could not be observed.
type AmbiguousError struct {
	Signature solana.Signature
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%v: signature %s", ErrConfirmationTimeout, e.Signature)
}

func (e *AmbiguousError) Unwrap() error {
	return ErrConfirmationTimeout
}

// RPC is the subset of the solana-go RPC client the service uses; *rpc.Client satisfies it.
type RPC interface {
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetHealth(ctx context.Context) (string, error)
}

type Options struct {
	VerifyCommitment         rpc.CommitmentType
	SettleCommitment         rpc.CommitmentType
	ConfirmTimeout           time.Duration
	PollInterval             time.Duration
	SendAttempts             int
	PriorityFeeMicroLamports uint64
}

func (o Options) withDefaults() Options {
	if o.VerifyCommitment == "" {
		o.VerifyCommitment = rpc.CommitmentConfirmed
	}
	if o.SettleCommitment == "" {
		o.SettleCommitment = rpc.CommitmentConfirmed
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 60 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.SendAttempts < 1 {
		o.SendAttempts = 1
	}
	return o
}

// Client wraps an RPC endpoint with receipt decoding and send-and-confirm semantics.
type Client struct {
	rpc    RPC
	opts   Options
	logger *utils.Logger
}

func NewClient(r RPC, opts Options, logger *utils.Logger) *Client {
	return &Client{rpc: r, opts: opts.withDefaults(), logger: logger}
}

func Dial(endpoint string, opts Options, logger *utils.Logger) *Client {
	return NewClient(rpc.New(endpoint), opts, logger)
}

// Receipt is the confirmed view of a transaction needed to audit balance movements.
type Receipt struct {
	Signature         solana.Signature
	Slot              uint64
	AccountKeys       solana.PublicKeySlice
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []rpc.TokenBalance
	PostTokenBalances []rpc.TokenBalance
	Failed            bool
}

func (r *Receipt) AccountIndex(key solana.PublicKey) (int, bool) {
	for i, k := range r.AccountKeys {
		if k.Equals(key) {
			return i, true
		}
	}
	return -1, false
}

func (c *Client) Receipt(ctx context.Context, sig solana.Signature) (*Receipt, error) {
	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.opts.VerifyCommitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", sig, err)
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, ErrReceiptNotFound
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", sig, err)
	}

	keys := make(solana.PublicKeySlice, 0, len(tx.Message.AccountKeys)+len(res.Meta.LoadedAddresses.Writable)+len(res.Meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, res.Meta.LoadedAddresses.Writable...)
	keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)

	return &Receipt{
		Signature:         sig,
		Slot:              res.Slot,
		AccountKeys:       keys,
		PreBalances:       res.Meta.PreBalances,
		PostBalances:      res.Meta.PostBalances,
		PreTokenBalances:  res.Meta.PreTokenBalances,
		PostTokenBalances: res.Meta.PostTokenBalances,
		Failed:            res.Meta.Err != nil,
	}, nil
}

func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	res, err := c.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	return res != nil && res.Value != nil, nil
}

func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetBalance(ctx, account, c.opts.SettleCommitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", account, err)
	}
	return res.Value, nil
}

// TokenBalance returns the raw amount held by a token account, zero when it does not exist.
func (c *Client) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	exists, err := c.AccountExists(ctx, tokenAccount)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	res, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, c.opts.SettleCommitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance of %s: %w", tokenAccount, err)
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

func (c *Client) RentExemption(ctx context.Context, size uint64) (uint64, error) {
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, size, c.opts.SettleCommitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption for %d bytes: %w", size, err)
	}
	return lamports, nil
}

func (c *Client) Healthy(ctx context.Context) error {
	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return err
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("rpc unhealthy: %s", status)
	}
	return nil
}
