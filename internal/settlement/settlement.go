// Package settlement moves value out of the custodial vault.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/tokens"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
)

var ErrInsufficientVaultBalance = errors.New("vault balance is insufficient for settlement")

// Transfer is one outbound payment from the vault.
type Transfer struct {
	Network  models.Network
	Asset    models.AssetKind
	Amount   decimal.Decimal
	Mint     solana.PublicKey
	Decimals uint8
	To       solana.PublicKey
	// OnSigned receives the signature of each attempt before it is submitted.
	OnSigned func(sig solana.Signature) error
}

type Executor struct {
	pool   *ledger.Pool
	vault  solana.PrivateKey
	logger *utils.Logger
}

func NewExecutor(pool *ledger.Pool, vault solana.PrivateKey, logger *utils.Logger) *Executor {
	return &Executor{pool: pool, vault: vault, logger: logger}
}

func (e *Executor) Vault() solana.PublicKey {
	return e.vault.PublicKey()
}

// Transfer submits the payment and returns once it is confirmed. It never touches the record store.
// Errors from the ledger keep their identity: ledger.ErrSubmissionFailed and ledger.ErrTransactionFailed
// are definitive, *ledger.AmbiguousError is not.
func (e *Executor) Transfer(ctx context.Context, t Transfer) (solana.Signature, error) {
	client, err := e.pool.For(t.Network)
	if err != nil {
		return solana.Signature{}, err
	}

	var instructions []solana.Instruction
	switch t.Asset {
	case models.AssetNative:
		instructions, err = e.nativeTransfer(ctx, client, t)
	case models.AssetFungible:
		instructions, err = e.tokenTransfer(ctx, client, t)
	default:
		err = fmt.Errorf("unsupported asset kind %q", t.Asset)
	}
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := client.SendAndConfirm(ctx, ledger.SendRequest{
		Instructions: instructions,
		Signers:      []solana.PrivateKey{e.vault},
		OnSigned:     t.OnSigned,
	})
	if err != nil {
		return sig, err
	}

	e.logger.Infof("💸 settled %s %s to %s: %s", t.Amount, t.Asset, utils.MaskShort(t.To.String()), utils.MaskShort(sig.String()))
	return sig, nil
}

func (e *Executor) nativeTransfer(ctx context.Context, client *ledger.Client, t Transfer) ([]solana.Instruction, error) {
	lamports, err := tokens.ToMinorUnits(t.Amount, models.NativeDecimals)
	if err != nil {
		return nil, err
	}

	balance, err := client.Balance(ctx, e.vault.PublicKey())
	if err != nil {
		return nil, err
	}
	if balance < lamports {
		return nil, fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientVaultBalance, balance, lamports)
	}

	return []solana.Instruction{
		system.NewTransferInstruction(lamports, e.vault.PublicKey(), t.To).Build(),
	}, nil
}

func (e *Executor) tokenTransfer(ctx context.Context, client *ledger.Client, t Transfer) ([]solana.Instruction, error) {
	if t.Mint.IsZero() {
		return nil, errors.New("token transfer without mint")
	}
	amount, err := tokens.ToMinorUnits(t.Amount, t.Decimals)
	if err != nil {
		return nil, err
	}

	vault := e.vault.PublicKey()
	source, _, err := solana.FindAssociatedTokenAddress(vault, t.Mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault token account: %w", err)
	}
	destination, _, err := solana.FindAssociatedTokenAddress(t.To, t.Mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive recipient token account: %w", err)
	}

	held, err := client.TokenBalance(ctx, source)
	if err != nil {
		return nil, err
	}
	if held < amount {
		return nil, fmt.Errorf("%w: have %d of %s, need %d", ErrInsufficientVaultBalance, held, t.Mint, amount)
	}

	exists, err := client.AccountExists(ctx, destination)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	if !exists {
		e.logger.Debugf("creating token account %s for %s", utils.MaskShort(destination.String()), utils.MaskShort(t.To.String()))
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(vault, t.To, t.Mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferCheckedInstruction(amount, t.Decimals, source, t.Mint, destination, vault, []solana.PublicKey{}).Build(),
	)
	return instructions, nil
}
