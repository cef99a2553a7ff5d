package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Fi44er/sol_gift/internal/ledger"
	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gagliardetto/solana-go"
)

// ReconcileReport counts what one reconciliation pass did.
type ReconcileReport struct {
	Finalized int
	Released  int
	Waiting   int
	Errors    int
	Nonces    int64
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Infof("🔁 reconciler started, every %s", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("🔁 reconciler stopped")
			return
		case <-ticker.C:
			report := s.Reconcile(ctx)
			if report.Finalized+report.Released+report.Errors > 0 {
				s.logger.Infof("🔁 reconciled: %d finalized, %d released, %d waiting, %d errors",
					report.Finalized, report.Released, report.Waiting, report.Errors)
			}
		}
	}
}

// Reconcile settles every in-flight link and mint whose request did not observe the outcome.
// A landed signature is finalized; a failed one, or one still unknown after ReleaseAfter, is released.
func (s *Service) Reconcile(ctx context.Context) ReconcileReport {
	var report ReconcileReport
	now := s.now()

	links, err := s.repo.ListInFlightLinks(ctx)
	if err != nil {
		s.logger.Errorf("reconcile: %v", err)
		report.Errors++
	}
	for i := range links {
		s.count(&report, s.reconcileLink(ctx, &links[i], now))
	}

	claims, err := s.repo.ListPendingClaims(ctx)
	if err != nil {
		s.logger.Errorf("reconcile: %v", err)
		report.Errors++
	}
	networks := map[string]models.Network{}
	for i := range claims {
		s.count(&report, s.reconcileClaim(ctx, &claims[i], networks, now))
	}

	purged, err := s.repo.PurgeExpiredNonces(ctx, now)
	if err != nil {
		s.logger.Errorf("reconcile: %v", err)
		report.Errors++
	}
	report.Nonces = purged
	return report
}

type verdict int

const (
	verdictWaiting verdict = iota
	verdictFinalized
	verdictReleased
	verdictError
)

func (s *Service) count(r *ReconcileReport, v verdict) {
	switch v {
	case verdictFinalized:
		r.Finalized++
	case verdictReleased:
		r.Released++
	case verdictError:
		r.Errors++
	default:
		r.Waiting++
	}
}

// outcome asks the ledger about ref; an empty ref is reported unknown.
func (s *Service) outcome(ctx context.Context, network models.Network, ref *string) (ledger.Outcome, error) {
	if ref == nil || *ref == "" {
		return ledger.OutcomeUnknown, nil
	}
	sig, err := solana.SignatureFromBase58(*ref)
	if err != nil {
		return ledger.OutcomeUnknown, fmt.Errorf("malformed signature %q: %w", *ref, err)
	}
	client, err := s.pool.For(network)
	if err != nil {
		return ledger.OutcomeUnknown, err
	}
	return client.Outcome(ctx, sig)
}

func (s *Service) reconcileLink(ctx context.Context, link *models.Link, now time.Time) verdict {
	outcome, err := s.outcome(ctx, link.Network, link.PendingTxRef)
	if err != nil {
		s.logger.Errorf("reconcile link %s: %v", link.ID, err)
		return verdictError
	}

	switch outcome {
	case ledger.OutcomeLanded:
		var done bool
		switch link.Status {
		case models.LinkSettling:
			if link.PendingRecipient == nil {
				s.logger.Errorf("reconcile link %s: settled without a recorded recipient", link.ID)
				return verdictError
			}
			done, err = s.repo.CompleteClaim(ctx, link.ID, deref(link.SettlementID), *link.PendingRecipient, *link.PendingTxRef, now)
		case models.LinkRefunding:
			done, err = s.repo.DeleteRefundedLink(ctx, link.ID, deref(link.SettlementID))
		}
		if err != nil {
			s.logger.Errorf("reconcile link %s: %v", link.ID, err)
			return verdictError
		}
		if done {
			s.logger.Infof("✅ reconciled link %s: %s landed in %s", link.ID, link.Status, utils.MaskShort(*link.PendingTxRef))
			return verdictFinalized
		}
		return verdictWaiting

	case ledger.OutcomeFailed:
		return s.releaseLink(ctx, link, "failed on ledger")

	default:
		if link.PendingSince != nil && now.Sub(*link.PendingSince) < s.opts.ReleaseAfter {
			return verdictWaiting
		}
		return s.releaseLink(ctx, link, "never observed")
	}
}

func (s *Service) releaseLink(ctx context.Context, link *models.Link, why string) verdict {
	ok, err := s.repo.ReleaseSettlement(ctx, link.ID, deref(link.SettlementID), link.PendingTxRef)
	if err != nil {
		s.logger.Errorf("reconcile link %s: %v", link.ID, err)
		return verdictError
	}
	if !ok {
		return verdictWaiting
	}
	s.logger.Warnf("↩️ reconciled link %s: %s %s, back to active", link.ID, link.Status, why)
	return verdictReleased
}

func (s *Service) reconcileClaim(ctx context.Context, claim *models.Claimer, networks map[string]models.Network, now time.Time) verdict {
	network, ok := networks[claim.LinkID]
	if !ok {
		link, err := s.repo.GetCandyMachineLink(ctx, claim.LinkID)
		if err != nil || link == nil {
			s.logger.Errorf("reconcile claim %d: link %s: %v", claim.ID, claim.LinkID, err)
			return verdictError
		}
		network = link.Network
		networks[claim.LinkID] = network
	}

	outcome, err := s.outcome(ctx, network, claim.PendingTxRef)
	if err != nil {
		s.logger.Errorf("reconcile claim %d: %v", claim.ID, err)
		return verdictError
	}

	switch outcome {
	case ledger.OutcomeLanded:
		done, err := s.repo.CompleteMint(ctx, claim.ID, *claim.PendingTxRef, now)
		if err != nil {
			s.logger.Errorf("reconcile claim %d: %v", claim.ID, err)
			return verdictError
		}
		if !done {
			return verdictWaiting
		}
		s.logger.Infof("✅ reconciled mint for %s on %s", utils.MaskShort(claim.ClaimerAddress), claim.LinkID)
		return verdictFinalized

	case ledger.OutcomeUnknown:
		since := claim.ReservedAt
		if claim.PendingSince != nil {
			since = *claim.PendingSince
		}
		if now.Sub(since) < s.opts.ReleaseAfter {
			return verdictWaiting
		}
	}

	released, err := s.repo.ReleaseClaim(ctx, claim)
	if err != nil {
		s.logger.Errorf("reconcile claim %d: %v", claim.ID, err)
		return verdictError
	}
	if !released {
		return verdictWaiting
	}
	s.logger.Warnf("↩️ reconciled mint for %s on %s: released", utils.MaskShort(claim.ClaimerAddress), claim.LinkID)
	return verdictReleased
}
