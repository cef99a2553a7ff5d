// Package verifier proves from ledger balance deltas that a deposit reached the vault.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/tokens"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

var (
	ErrReceiptNotFound    = errors.New("deposit transaction not found")
	ErrVaultNotInvolved   = errors.New("vault is not involved in the deposit transaction")
	ErrInsufficientCredit = errors.New("deposit credited less than the claimed amount")
	ErrDecimalsMismatch   = errors.New("token decimals do not match the deposit")
	ErrTransactionFailed  = errors.New("deposit transaction failed")
	ErrPayerMismatch      = errors.New("deposit was not paid by the link creator")
)

// RejectedError is a definitive verdict against a deposit. Reason is one of the sentinels above.
type RejectedError struct {
	Reason error
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%v: %s", e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error {
	return e.Reason
}

func reject(reason error, format string, args ...interface{}) error {
	return &RejectedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Deposit is what the creator claims to have sent to the vault.
type Deposit struct {
	Network  models.Network
	TxRef    string
	Vault    solana.PublicKey
	// Payer must be the fee payer of the deposit when set.
	Payer    solana.PublicKey
	Asset    models.AssetKind
	Amount   decimal.Decimal
	Mint     solana.PublicKey
	Decimals uint8
}

type Verifier struct {
	pool   *ledger.Pool
	logger *utils.Logger
}

func New(pool *ledger.Pool, logger *utils.Logger) *Verifier {
	return &Verifier{pool: pool, logger: logger}
}

// VerifyDeposit returns nil when the receipt shows the vault credited with at least d.Amount.
// A *RejectedError is final for this receipt; any other error is transient.
func (v *Verifier) VerifyDeposit(ctx context.Context, d Deposit) error {
	decimals := d.Decimals
	if d.Asset == models.AssetNative {
		decimals = models.NativeDecimals
	}
	expected, err := tokens.ToMinorUnits(d.Amount, decimals)
	if err != nil {
		return err
	}

	sig, err := solana.SignatureFromBase58(d.TxRef)
	if err != nil {
		return reject(ErrReceiptNotFound, "malformed reference %q", d.TxRef)
	}

	client, err := v.pool.For(d.Network)
	if err != nil {
		return err
	}
	receipt, err := client.Receipt(ctx, sig)
	if errors.Is(err, ledger.ErrReceiptNotFound) {
		return reject(ErrReceiptNotFound, "%s", utils.MaskShort(d.TxRef))
	}
	if err != nil {
		return fmt.Errorf("failed to fetch deposit receipt: %w", err)
	}
	if receipt.Failed {
		return reject(ErrTransactionFailed, "%s", utils.MaskShort(d.TxRef))
	}
	if !d.Payer.IsZero() && (len(receipt.AccountKeys) == 0 || !receipt.AccountKeys[0].Equals(d.Payer)) {
		return reject(ErrPayerMismatch, "%s", utils.MaskShort(d.TxRef))
	}

	var credited uint64
	switch d.Asset {
	case models.AssetNative:
		credited, err = nativeCredit(receipt, d.Vault)
	case models.AssetFungible:
		credited, err = tokenCredit(receipt, d.Vault, d.Mint, d.Decimals)
	default:
		return fmt.Errorf("unsupported asset kind %q", d.Asset)
	}
	if err != nil {
		return err
	}

	if credited < expected {
		return reject(ErrInsufficientCredit, "credited %d, claimed %d", credited, expected)
	}

	v.logger.Debugf("🔎 deposit %s verified: credited %d >= %d", utils.MaskShort(d.TxRef), credited, expected)
	return nil
}

func nativeCredit(receipt *ledger.Receipt, vault solana.PublicKey) (uint64, error) {
	idx, ok := receipt.AccountIndex(vault)
	if !ok || idx >= len(receipt.PreBalances) || idx >= len(receipt.PostBalances) {
		return 0, reject(ErrVaultNotInvolved, "vault %s", vault)
	}
	pre, post := receipt.PreBalances[idx], receipt.PostBalances[idx]
	if post < pre {
		return 0, nil
	}
	return post - pre, nil
}

func tokenCredit(receipt *ledger.Receipt, vault, mint solana.PublicKey, decimals uint8) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(vault, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to derive vault token account: %w", err)
	}
	idx, ok := receipt.AccountIndex(ata)
	if !ok {
		return 0, reject(ErrVaultNotInvolved, "vault token account %s", ata)
	}

	post, ok := findTokenBalance(receipt.PostTokenBalances, idx, mint)
	if !ok {
		return 0, reject(ErrVaultNotInvolved, "no %s balance for vault token account", mint)
	}
	if post.UiTokenAmount == nil {
		return 0, reject(ErrVaultNotInvolved, "empty token balance")
	}
	if post.UiTokenAmount.Decimals != decimals {
		return 0, reject(ErrDecimalsMismatch, "mint has %d decimals, deposit declared %d", post.UiTokenAmount.Decimals, decimals)
	}

	postAmount, err := parseAmount(post)
	if err != nil {
		return 0, err
	}
	var preAmount uint64
	// a missing pre balance means the vault token account was created by this transaction
	if pre, ok := findTokenBalance(receipt.PreTokenBalances, idx, mint); ok {
		if preAmount, err = parseAmount(pre); err != nil {
			return 0, err
		}
	}
	if postAmount < preAmount {
		return 0, nil
	}
	return postAmount - preAmount, nil
}

func findTokenBalance(balances []rpc.TokenBalance, idx int, mint solana.PublicKey) (rpc.TokenBalance, bool) {
	for _, b := range balances {
		if int(b.AccountIndex) == idx && b.Mint.Equals(mint) {
			return b, true
		}
	}
	return rpc.TokenBalance{}, false
}

func parseAmount(b rpc.TokenBalance) (uint64, error) {
	if b.UiTokenAmount == nil {
		return 0, nil
	}
	v, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q in receipt: %w", b.UiTokenAmount.Amount, err)
	}
	return v, nil
}
