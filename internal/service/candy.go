package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/notify"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/repository"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
)

type CreateCandyMachineLinkRequest struct {
	Address             string
	CandymachineAddress string
	Size                int
	Network             models.Network
	ImageURL            string
	MetadataURL         string
	Name                string
	Description         string
	Royalty             *float64
	Symbol              string
	ExternalURL         string
	Message             string
}

func validRoyalty(r *float64) bool {
	return r == nil || (*r > 0 && *r < 100)
}

// CreateCandyMachineLink opens a dispenser over a collection the caller provisioned.
func (s *Service) CreateCandyMachineLink(ctx context.Context, identity SessionIdentity, req CreateCandyMachineLinkRequest) (*models.CandyMachineLink, error) {
	if identity.Address == "" {
		return nil, ErrUnauthenticated
	}
	if req.Address == "" || req.CandymachineAddress == "" || req.Name == "" || req.ImageURL == "" || req.MetadataURL == "" {
		return nil, invalidf("address, candymachineAddress, name, imageUrl and metadataUrl are required")
	}
	if identity.Address != req.Address {
		return nil, ErrUnauthorized
	}
	if len(req.Name) > maxNameLen || len(req.Symbol) > maxSymbolLen || len(req.MetadataURL) > maxURILen {
		return nil, invalidf("name, symbol or metadataUrl is too long")
	}
	if req.Size < 1 {
		return nil, invalidf("size must be at least 1")
	}
	if !validRoyalty(req.Royalty) {
		return nil, invalidf("royalty must be between 0 and 100")
	}
	network, err := s.network(req.Network)
	if err != nil {
		return nil, err
	}

	prov, err := s.repo.GetProvisionByTree(ctx, req.CandymachineAddress)
	if err != nil {
		return nil, err
	}
	if prov == nil {
		return nil, ErrCollectionNotFound
	}
	if prov.CreatedByAddress != identity.Address {
		return nil, ErrUnauthorized
	}
	if prov.Step != models.StepReady {
		return nil, ErrCollectionNotReady
	}
	if prov.Network != network {
		return nil, invalidf("collection lives on %s, not %s", prov.Network, network)
	}
	if capacity := uint64(1) << prov.MaxDepth; uint64(req.Size) > capacity || req.Size > prov.Size {
		return nil, invalidf("size %d exceeds the collection capacity", req.Size)
	}

	existing, err := s.repo.GetCandyMachineLinkByAddress(ctx, req.CandymachineAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrLinkExists
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = prov.Symbol
	}
	link := &models.CandyMachineLink{
		ProvisionID:         prov.ID,
		Name:                req.Name,
		Description:         req.Description,
		CandymachineAddress: req.CandymachineAddress,
		Size:                req.Size,
		Symbol:              symbol,
		Royalty:             req.Royalty,
		ExternalURL:         req.ExternalURL,
		Network:             network,
		ImageURL:            req.ImageURL,
		MetadataURL:         req.MetadataURL,
		Message:             req.Message,
		CreatedByAddress:    req.Address,
	}
	if err := s.repo.CreateCandyMachineLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrLinkExists
		}
		return nil, fmt.Errorf("failed to create candy machine link: %w", err)
	}

	s.logger.Infof("🍬 candy machine link %s over %s created by %s", link.ID, utils.MaskShort(link.CandymachineAddress), utils.MaskShort(link.CreatedByAddress))
	return link, nil
}

func (s *Service) GetCandyMachineLink(ctx context.Context, id string) (*models.CandyMachineLink, error) {
	link, err := s.repo.GetCandyMachineLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

// ClaimNFT mints one leaf to claimerAddress. The reservation taken first enforces
// one mint per wallet and the supply cap; it is given back only if the mint definitely failed.
func (s *Service) ClaimNFT(ctx context.Context, id, claimerAddress string) (string, error) {
	owner, err := solana.PublicKeyFromBase58(claimerAddress)
	if err != nil {
		return "", invalidf("claimerAddress %q is not a wallet address", claimerAddress)
	}

	link, err := s.GetCandyMachineLink(ctx, id)
	if err != nil {
		return "", err
	}
	prov, err := s.repo.GetProvision(ctx, link.ProvisionID)
	if err != nil {
		return "", err
	}
	if prov == nil {
		return "", ErrCollectionNotFound
	}

	reservation, err := s.repo.ReserveClaim(ctx, id, claimerAddress, s.now())
	switch {
	case errors.Is(err, repository.ErrAlreadyReserved):
		return "", ErrAlreadyClaimedByWallet
	case errors.Is(err, repository.ErrSupplyExhausted):
		return "", ErrSupplyExhausted
	case errors.Is(err, repository.ErrNotFound):
		return "", ErrLinkNotFound
	case err != nil:
		return "", err
	}

	sig, err := s.provisioner.MintLeaf(ctx, prov, provisioner.Leaf{
		Owner: owner,
		Name:  link.Name,
		URI:   link.MetadataURL,
		OnSigned: func(sig solana.Signature) error {
			ref := sig.String()
			if err := s.repo.SetClaimPendingTx(detached(ctx), reservation.ID, ref, s.now()); err != nil {
				return err
			}
			reservation.PendingTxRef = &ref
			return nil
		},
	})
	if err != nil {
		var ambiguous *ledger.AmbiguousError
		if errors.As(err, &ambiguous) {
			s.logger.Warnf("⏳ candy machine link %s: mint for %s not observed, left for reconciliation", id, utils.MaskShort(claimerAddress))
			s.notifier.Notify(detached(ctx), notify.Event{
				Kind:    notify.SettlementAmbiguous,
				Subject: id,
				Detail:  fmt.Sprintf("mint to %s", claimerAddress),
				Fields:  map[string]string{"signature": ambiguous.Signature.String()},
			})
			return "", fmt.Errorf("%w: %w", ErrSettlementPending, err)
		}

		if _, relErr := s.repo.ReleaseClaim(detached(ctx), reservation); relErr != nil {
			s.logger.Errorf("❌ candy machine link %s: failed to release reservation of %s: %v", id, utils.MaskShort(claimerAddress), relErr)
		}
		if errors.Is(err, provisioner.ErrNotReady) {
			return "", ErrCollectionNotReady
		}
		s.logger.Errorf("❌ candy machine link %s: mint to %s failed: %v", id, utils.MaskShort(claimerAddress), err)
		return "", fmt.Errorf("mint failed: %w", err)
	}

	if _, err := s.repo.CompleteMint(detached(ctx), reservation.ID, sig.String(), s.now()); err != nil {
		s.logger.Errorf("❌ candy machine link %s: minted %s but not recorded: %v", id, sig, err)
		return "", fmt.Errorf("failed to record mint: %w", err)
	}

	s.logger.Infof("✅ candy machine link %s: minted to %s", id, utils.MaskShort(claimerAddress))
	return sig.String(), nil
}
