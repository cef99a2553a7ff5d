package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/internal/notify"
	"github.com/Fi44er/sol_gift/internal/provisioner"
	"github.com/Fi44er/sol_gift/internal/repository"
	"github.com/Fi44er/sol_gift/internal/treeplan"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/google/uuid"
)

var ErrProvisionRunning = errors.New("collection provisioning is already running")

// metadata field limits enforced by the token metadata program
const (
	maxNameLen   = 32
	maxSymbolLen = 10
	maxURILen    = 200
)

type ProvisionRequest struct {
	Network     models.Network
	Size        int
	Name        string
	Symbol      string
	MetadataURL string
	Royalty     *float64
}

// Provision records a new collection and drives it as far as it will go.
// On a failed step the stored record is returned together with a *provisioner.StepError.
func (s *Service) Provision(ctx context.Context, identity SessionIdentity, req ProvisionRequest) (*models.CollectionProvision, error) {
	if identity.Address == "" {
		return nil, ErrUnauthenticated
	}
	if req.Name == "" || req.MetadataURL == "" {
		return nil, invalidf("name and metadataUrl are required")
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
	if !treeplan.Fits(req.Size, s.provisioner.Planner().Plan(req.Size).MaxDepth) {
		return nil, invalidf("size %d is larger than the biggest supported tree", req.Size)
	}

	prov := &models.CollectionProvision{
		Network:          network,
		CreatedByAddress: identity.Address,
		Name:             req.Name,
		Symbol:           req.Symbol,
		MetadataURL:      req.MetadataURL,
		Size:             req.Size,
	}
	if req.Royalty != nil {
		prov.SellerFeeBps = uint16(math.Round(*req.Royalty * 100))
	}
	if err := s.repo.CreateProvision(ctx, prov); err != nil {
		return nil, err
	}
	s.logger.Infof("🌳 provision %s for %d items started by %s", prov.ID, prov.Size, utils.MaskShort(identity.Address))

	return s.runProvision(ctx, prov)
}

// Resume continues a provision from its first incomplete step.
func (s *Service) Resume(ctx context.Context, identity SessionIdentity, id string) (*models.CollectionProvision, error) {
	prov, err := s.GetProvision(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if prov.Step == models.StepReady {
		return prov, nil
	}
	return s.runProvision(ctx, prov)
}

func (s *Service) GetProvision(ctx context.Context, identity SessionIdentity, id string) (*models.CollectionProvision, error) {
	if identity.Address == "" {
		return nil, ErrUnauthenticated
	}
	prov, err := s.repo.GetProvision(ctx, id)
	if err != nil {
		return nil, err
	}
	if prov == nil {
		return nil, ErrCollectionNotFound
	}
	if prov.CreatedByAddress != identity.Address {
		return nil, ErrUnauthorized
	}
	return prov, nil
}

// runProvision drives prov under a lease so that only one runner, in any process,
// submits its steps at a time.
func (s *Service) runProvision(ctx context.Context, prov *models.CollectionProvision) (*models.CollectionProvision, error) {
	runner := uuid.NewString()
	now := s.now()
	leased, err := s.repo.AcquireProvisionLease(ctx, prov.ID, runner, now, now.Add(s.opts.ProvisionLease))
	if err != nil {
		return nil, err
	}
	if !leased {
		return nil, ErrProvisionRunning
	}
	defer func() {
		if err := s.repo.ReleaseProvisionLease(detached(ctx), prov.ID, runner); err != nil {
			s.logger.Errorf("❌ provision %s: %v", prov.ID, err)
		}
	}()

	// pick up whatever an earlier runner checkpointed
	current, err := s.repo.GetProvision(ctx, prov.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrCollectionNotFound
	}
	prov = current

	err = s.provisioner.Run(ctx, prov)
	prov.Runner, prov.LeaseUntil = nil, nil
	if err == nil {
		s.logger.Infof("✅ provision %s ready: tree %s", prov.ID, deref(prov.TreeAddress))
		return prov, nil
	}
	if errors.Is(err, repository.ErrLeaseLost) {
		s.logger.Warnf("⚠️ provision %s was taken over by another runner", prov.ID)
		return nil, ErrProvisionRunning
	}

	var stepErr *provisioner.StepError
	if errors.As(err, &stepErr) {
		fields := map[string]string{"step": stepErr.Step, "network": string(prov.Network)}
		for k, v := range stepErr.Artifacts {
			fields[k] = v
		}
		s.notifier.Notify(detached(ctx), notify.Event{
			Kind:    notify.ProvisionFailed,
			Subject: prov.ID,
			Detail:  stepErr.Err.Error(),
			Fields:  fields,
		})
		return prov, err
	}
	return prov, fmt.Errorf("failed to provision collection: %w", err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
