package service

import (
	"context"
	"fmt"

	"github.com/Fi44er/sol_gift/internal/models"
)

// OperatorStatus is the operator's view of the vault and of unsettled work.
type OperatorStatus struct {
	Vault string

	// lamports per network; a network whose RPC did not answer is absent
	Balances map[models.Network]uint64
	Links    []models.Link
	Claims   []models.Claimer
}

func (s *Service) Status(ctx context.Context) (*OperatorStatus, error) {
	status := &OperatorStatus{
		Vault:    s.VaultAddress(),
		Balances: map[models.Network]uint64{},
	}

	for _, network := range s.pool.Networks() {
		client, err := s.pool.For(network)
		if err != nil {
			continue
		}
		balance, err := client.Balance(ctx, s.settler.Vault())
		if err != nil {
			s.logger.Warnf("vault balance on %s unavailable: %v", network, err)
			continue
		}
		status.Balances[network] = balance
	}

	links, err := s.repo.ListInFlightLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight links: %w", err)
	}
	claims, err := s.repo.ListPendingClaims(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}
	status.Links, status.Claims = links, claims
	return status, nil
}
