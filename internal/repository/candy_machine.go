package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/sol_gift/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateCandyMachineLink(ctx context.Context, link *models.CandyMachineLink) error {
	err := r.db.WithContext(ctx).Create(link).Error
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create candy machine link: %w", err)
	}
	return nil
}

func (r *Repository) GetCandyMachineLink(ctx context.Context, id string) (*models.CandyMachineLink, error) {
	var link models.CandyMachineLink
	err := r.db.WithContext(ctx).
		Preload("Claimers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("id = ?", id).
		First(&link).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candy machine link %s: %w", id, err)
	}
	return &link, nil
}

func (r *Repository) GetCandyMachineLinkByAddress(ctx context.Context, address string) (*models.CandyMachineLink, error) {
	var link models.CandyMachineLink
	err := r.db.WithContext(ctx).
		Where("candymachine_address = ?", address).
		First(&link).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candy machine link by address: %w", err)
	}
	return &link, nil
}

// ReserveClaim records the claimer and takes one unit of supply in a single transaction.
// The wallet check runs before the supply check.
func (r *Repository) ReserveClaim(ctx context.Context, linkID, claimerAddress string, now time.Time) (*models.Claimer, error) {
	claimer := &models.Claimer{
		LinkID:         linkID,
		ClaimerAddress: claimerAddress,
		Status:         models.ClaimerPending,
		ReservedAt:     now,
	}

	err := r.inTransaction(ctx, "reservation", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CandyMachineLink{}).Where("id = ?", linkID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up candy machine link: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}

		if err := tx.Create(claimer).Error; err != nil {
			if isDuplicate(err) {
				return ErrAlreadyReserved
			}
			return fmt.Errorf("failed to reserve claimer: %w", err)
		}

		res := tx.Model(&models.CandyMachineLink{}).
			Where("id = ? AND already_minted < size", linkID).
			Update("already_minted", gorm.Expr("already_minted + 1"))
		if res.Error != nil {
			return fmt.Errorf("failed to take supply: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSupplyExhausted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimer, nil
}

func (r *Repository) SetClaimPendingTx(ctx context.Context, claimerID uint, signature string, now time.Time) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Claimer{}).
		Where("id = ? AND status = ?", claimerID, models.ClaimerPending).
		Updates(map[string]interface{}{
			"pending_tx_ref": signature,
			"pending_since":  now,
		})
	if tx.Error != nil {
		return fmt.Errorf("failed to record mint signature: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("claim reservation %d is no longer pending", claimerID)
	}
	return nil
}

func (r *Repository) CompleteMint(ctx context.Context, claimerID uint, signature string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Claimer{}).
		Where("id = ? AND status = ?", claimerID, models.ClaimerPending).
		Updates(map[string]interface{}{
			"status":          models.ClaimerMinted,
			"claimed_at":      at,
			"claim_signature": signature,
			"pending_tx_ref":  nil,
			"pending_since":   nil,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to complete mint for claim %d: %w", claimerID, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// ReleaseClaim drops a pending reservation and gives its unit of supply back.
// It is refused when the reservation has signed a mint other than claimer.PendingTxRef.
func (r *Repository) ReleaseClaim(ctx context.Context, claimer *models.Claimer) (bool, error) {
	released := false
	err := r.inTransaction(ctx, "release", func(tx *gorm.DB) error {
		q := tx.Where("id = ? AND status = ?", claimer.ID, models.ClaimerPending)
		if claimer.PendingTxRef == nil {
			q = q.Where("pending_tx_ref IS NULL")
		} else {
			q = q.Where("pending_tx_ref = ?", *claimer.PendingTxRef)
		}
		res := q.Delete(&models.Claimer{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete reservation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		err := tx.Model(&models.CandyMachineLink{}).
			Where("id = ? AND already_minted > 0", claimer.LinkID).
			Update("already_minted", gorm.Expr("already_minted - 1")).
			Error
		if err != nil {
			return fmt.Errorf("failed to return supply: %w", err)
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

func (r *Repository) ListPendingClaims(ctx context.Context) ([]models.Claimer, error) {
	var claimers []models.Claimer
	err := r.db.WithContext(ctx).
		Where("status = ?", models.ClaimerPending).
		Order("reserved_at ASC").
		Find(&claimers).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}
	return claimers, nil
}
