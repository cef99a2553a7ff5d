package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/notify"
	"github.com/Fi44er/sol_gift/internal/repository"
	"github.com/Fi44er/sol_gift/internal/settlement"
	"github.com/Fi44er/sol_gift/internal/tokens"
	"github.com/Fi44er/sol_gift/internal/verifier"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateLinkRequest struct {
	Amount       decimal.Decimal
	Token        string
	DepositTxSig string
	Address      string
	Message      string
	Mint         string
	Decimals     *uint8
	Symbol       string
	Network      models.Network
}

// CreateLink records a link only after the deposit it names is proven on the ledger.
func (s *Service) CreateLink(ctx context.Context, identity SessionIdentity, req CreateLinkRequest) (*models.Link, error) {
	if identity.Address == "" {
		return nil, ErrUnauthenticated
	}
	if req.Address == "" || req.DepositTxSig == "" || req.Token == "" {
		return nil, invalidf("address, token and depositTxSig are required")
	}
	if identity.Address != req.Address {
		return nil, ErrUnauthorized
	}
	payer, err := solana.PublicKeyFromBase58(req.Address)
	if err != nil {
		return nil, invalidf("address %q is not a wallet address", req.Address)
	}
	network, err := s.network(req.Network)
	if err != nil {
		return nil, err
	}

	// without a mint the token name must come from the registry
	symbol := req.Token
	if req.Mint != "" && req.Symbol != "" {
		symbol = req.Symbol
	}
	token, err := tokens.Resolve(symbol, req.Mint, req.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if _, err := tokens.ToMinorUnits(req.Amount, token.Decimals); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	deposit := verifier.Deposit{
		Network:  network,
		TxRef:    req.DepositTxSig,
		Vault:    s.settler.Vault(),
		Payer:    payer,
		Asset:    models.AssetNative,
		Amount:   req.Amount,
		Decimals: token.Decimals,
	}
	if !token.Native() {
		deposit.Asset = models.AssetFungible
		deposit.Mint = token.Mint
	}

	if err := s.verifier.VerifyDeposit(ctx, deposit); err != nil {
		var rejected *verifier.RejectedError
		if errors.As(err, &rejected) {
			s.logger.Warnf("🚫 deposit %s from %s rejected: %v", utils.MaskShort(req.DepositTxSig), utils.MaskShort(req.Address), err)
			return nil, fmt.Errorf("%w: %w", ErrDepositRejected, err)
		}
		return nil, fmt.Errorf("failed to verify deposit: %w", err)
	}

	link := &models.Link{
		Network:          network,
		Amount:           req.Amount,
		AssetKind:        deposit.Asset,
		Symbol:           token.Symbol,
		DepositTxRef:     req.DepositTxSig,
		Message:          req.Message,
		CreatedByAddress: req.Address,
	}
	if !token.Native() {
		mintAddr := token.Mint.String()
		decimals := token.Decimals
		link.Mint = &mintAddr
		link.Decimals = &decimals
	}

	if err := s.repo.CreateLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateDeposit
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	s.logger.Infof("🎁 link %s created by %s: %s %s", link.ID, utils.MaskShort(link.CreatedByAddress), link.Amount, link.Symbol)
	return link, nil
}

func (s *Service) GetLink(ctx context.Context, id string) (*models.Link, error) {
	link, err := s.repo.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

func (s *Service) ListLinks(ctx context.Context, identity SessionIdentity) ([]models.Link, error) {
	if identity.Address == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListLinksByCreator(ctx, identity.Address)
}

// Claim pays the link out to claimerAddress. Only the request that moves the link from
// active to settling submits a transfer.
func (s *Service) Claim(ctx context.Context, id, claimerAddress string) (string, error) {
	to, err := solana.PublicKeyFromBase58(claimerAddress)
	if err != nil {
		return "", invalidf("claimerAddress %q is not a wallet address", claimerAddress)
	}

	link, err := s.GetLink(ctx, id)
	if err != nil {
		return "", err
	}
	if link.Claimed {
		return "", ErrAlreadyClaimed
	}

	attempt := uuid.NewString()
	won, err := s.repo.BeginSettlement(ctx, id, attempt, models.LinkSettling, claimerAddress, s.now())
	if err != nil {
		return "", err
	}
	if !won {
		return "", s.claimConflict(ctx, id)
	}

	sig, err := s.settle(ctx, link, attempt, models.LinkSettling, to)
	if errors.Is(err, repository.ErrStaleSettlement) {
		return "", s.claimConflict(ctx, id)
	}
	if err != nil {
		return "", err
	}

	ok, err := s.repo.CompleteClaim(detached(ctx), id, attempt, claimerAddress, sig.String(), s.now())
	if err != nil {
		// the transfer landed; the reconciler finalizes from the recorded signature
		s.logger.Errorf("❌ link %s paid out in %s but not recorded: %v", id, sig, err)
		return "", fmt.Errorf("failed to record claim: %w", err)
	}
	if !ok {
		if current, _ := s.repo.GetLink(detached(ctx), id); current == nil || !current.Claimed {
			s.logger.Errorf("❌ link %s paid out in %s but its state changed underneath", id, sig)
			return "", fmt.Errorf("link %s changed during settlement", id)
		}
	}

	s.logger.Infof("✅ link %s claimed by %s", id, utils.MaskShort(claimerAddress))
	return sig.String(), nil
}

// Cancel refunds an unclaimed link to its creator and removes it.
func (s *Service) Cancel(ctx context.Context, identity SessionIdentity, id string) (string, error) {
	if identity.Address == "" {
		return "", ErrUnauthenticated
	}
	link, err := s.GetLink(ctx, id)
	if err != nil {
		return "", err
	}
	if identity.Address != link.CreatedByAddress {
		return "", ErrUnauthorized
	}
	if link.Claimed {
		return "", ErrAlreadyClaimed
	}
	creator, err := solana.PublicKeyFromBase58(link.CreatedByAddress)
	if err != nil {
		return "", fmt.Errorf("link %s has a malformed creator: %w", id, err)
	}

	attempt := uuid.NewString()
	won, err := s.repo.BeginSettlement(ctx, id, attempt, models.LinkRefunding, link.CreatedByAddress, s.now())
	if err != nil {
		return "", err
	}
	if !won {
		return "", s.cancelConflict(ctx, id)
	}

	sig, err := s.settle(ctx, link, attempt, models.LinkRefunding, creator)
	if errors.Is(err, repository.ErrStaleSettlement) {
		return "", s.cancelConflict(ctx, id)
	}
	if err != nil {
		return "", err
	}

	if _, err := s.repo.DeleteRefundedLink(detached(ctx), id, attempt); err != nil {
		s.logger.Errorf("❌ link %s refunded in %s but not removed: %v", id, sig, err)
		return "", fmt.Errorf("failed to remove refunded link: %w", err)
	}

	s.logger.Infof("↩️ link %s refunded to %s", id, utils.MaskShort(link.CreatedByAddress))
	return sig.String(), nil
}

// settle runs the transfer for a link that attempt has already moved into state.
// A definitive failure puts the link back to active; an ambiguous one leaves it in flight.
// Once the link stops belonging to attempt nothing more is signed or sent for it.
func (s *Service) settle(ctx context.Context, link *models.Link, attempt string, state models.LinkStatus, to solana.PublicKey) (solana.Signature, error) {
	var signed *string
	transfer := settlement.Transfer{
		Network: link.Network,
		Asset:   link.AssetKind,
		Amount:  link.Amount,
		To:      to,
		OnSigned: func(sig solana.Signature) error {
			ref := sig.String()
			if err := s.repo.SetLinkPendingTx(detached(ctx), link.ID, attempt, ref, s.now()); err != nil {
				return err
			}
			signed = &ref
			return nil
		},
	}
	if link.IsFungible() {
		if link.Mint == nil || link.Decimals == nil {
			s.release(ctx, link.ID, attempt, state, nil)
			return solana.Signature{}, fmt.Errorf("link %s has no mint recorded", link.ID)
		}
		mint, err := solana.PublicKeyFromBase58(*link.Mint)
		if err != nil {
			s.release(ctx, link.ID, attempt, state, nil)
			return solana.Signature{}, fmt.Errorf("link %s has a malformed mint: %w", link.ID, err)
		}
		transfer.Mint = mint
		transfer.Decimals = *link.Decimals
	}

	sig, err := s.settler.Transfer(ctx, transfer)
	if err == nil {
		return sig, nil
	}

	var ambiguous *ledger.AmbiguousError
	if errors.As(err, &ambiguous) {
		s.logger.Warnf("⏳ link %s: %s of %s not observed, left for reconciliation", link.ID, state, ambiguous.Signature)
		s.notifier.Notify(detached(ctx), notify.Event{
			Kind:    notify.SettlementAmbiguous,
			Subject: link.ID,
			Detail:  fmt.Sprintf("%s %s %s to %s", state, link.Amount, link.Symbol, to),
			Fields:  map[string]string{"signature": ambiguous.Signature.String()},
		})
		return sig, fmt.Errorf("%w: %w", ErrSettlementPending, err)
	}
	if errors.Is(err, repository.ErrStaleSettlement) {
		s.logger.Warnf("⚠️ link %s: %s attempt was superseded, nothing sent", link.ID, state)
		return sig, err
	}

	s.release(ctx, link.ID, attempt, state, signed)
	if errors.Is(err, settlement.ErrInsufficientVaultBalance) {
		s.notifier.Notify(detached(ctx), notify.Event{
			Kind:    notify.VaultUnderfunded,
			Subject: link.ID,
			Detail:  err.Error(),
			Fields:  map[string]string{"vault": s.settler.Vault().String(), "network": string(link.Network)},
		})
	}
	s.logger.Errorf("❌ link %s: %s failed: %v", link.ID, state, err)
	return sig, fmt.Errorf("settlement failed: %w", err)
}

func (s *Service) release(ctx context.Context, id, attempt string, from models.LinkStatus, signed *string) {
	if _, err := s.repo.ReleaseSettlement(detached(ctx), id, attempt, signed); err != nil {
		s.logger.Errorf("❌ link %s: failed to release %s state: %v", id, from, err)
	}
}

func (s *Service) claimConflict(ctx context.Context, id string) error {
	link, err := s.repo.GetLink(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case link == nil:
		return ErrLinkNotFound
	case link.Status == models.LinkRefunding:
		return ErrSettlementInProgress
	default:
		return ErrAlreadyClaimed
	}
}

func (s *Service) cancelConflict(ctx context.Context, id string) error {
	link, err := s.repo.GetLink(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case link == nil:
		return ErrLinkNotFound
	case link.Claimed:
		return ErrAlreadyClaimed
	default:
		return ErrSettlementInProgress
	}
}
