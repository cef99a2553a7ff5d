package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/sol_gift/internal/models"
	"gorm.io/gorm"
)

// CreateLink relies on the unique deposit index; a second insert of the same deposit returns ErrDuplicate.
func (r *Repository) CreateLink(ctx context.Context, link *models.Link) error {
	err := r.db.WithContext(ctx).Create(link).Error
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (r *Repository) GetLink(ctx context.Context, id string) (*models.Link, error) {
	var link models.Link
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&link).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link %s: %w", id, err)
	}
	return &link, nil
}

func (r *Repository) ListLinksByCreator(ctx context.Context, address string) ([]models.Link, error) {
	var links []models.Link
	err := r.db.WithContext(ctx).
		Where("created_by_address = ?", address).
		Order("created_at DESC").
		Find(&links).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list links for %s: %w", address, err)
	}
	return links, nil
}

// BeginSettlement moves an active, unclaimed link into an in-flight state owned by attempt.
// It is the only way a settlement may start; false means another request won.
func (r *Repository) BeginSettlement(ctx context.Context, id, attempt string, to models.LinkStatus, recipient string, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Link{}).
		Where("id = ? AND status = ? AND claimed = ?", id, models.LinkActive, false).
		Updates(map[string]interface{}{
			"status":            to,
			"settlement_id":     attempt,
			"pending_recipient": recipient,
			"pending_tx_ref":    nil,
			"pending_since":     now,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to begin settlement for link %s: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// SetLinkPendingTx records the signature attempt is about to submit. ErrStaleSettlement
// means the link no longer belongs to attempt and nothing may be sent.
func (r *Repository) SetLinkPendingTx(ctx context.Context, id, attempt, signature string, now time.Time) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Link{}).
		Where("id = ? AND settlement_id = ?", id, attempt).
		Updates(map[string]interface{}{
			"pending_tx_ref": signature,
			"pending_since":  now,
		})
	if tx.Error != nil {
		return fmt.Errorf("failed to record pending signature for link %s: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("link %s: %w", id, ErrStaleSettlement)
	}
	return nil
}

// CompleteClaim sets every claimed field in one conditional write.
func (r *Repository) CompleteClaim(ctx context.Context, id, attempt, claimer, signature string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Link{}).
		Where("id = ? AND status = ? AND settlement_id = ?", id, models.LinkSettling, attempt).
		Updates(map[string]interface{}{
			"status":             models.LinkClaimed,
			"claimed":            true,
			"claimed_at":         at,
			"claim_tx_ref":       signature,
			"claimed_by_address": claimer,
			"settlement_id":      nil,
			"pending_recipient":  nil,
			"pending_tx_ref":     nil,
			"pending_since":      nil,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to complete claim for link %s: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// ReleaseSettlement returns a link to active after attempt definitely did not land.
// pendingTx is the last signature the caller knows of; the release is refused when
// attempt has signed anything newer since.
func (r *Repository) ReleaseSettlement(ctx context.Context, id, attempt string, pendingTx *string) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Link{}).
		Where("id = ? AND settlement_id = ?", id, attempt)
	if pendingTx == nil {
		q = q.Where("pending_tx_ref IS NULL")
	} else {
		q = q.Where("pending_tx_ref = ?", *pendingTx)
	}
	tx := q.Updates(map[string]interface{}{
		"status":            models.LinkActive,
		"settlement_id":     nil,
		"pending_recipient": nil,
		"pending_tx_ref":    nil,
		"pending_since":     nil,
	})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to release link %s: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *Repository) DeleteRefundedLink(ctx context.Context, id, attempt string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND settlement_id = ?", id, models.LinkRefunding, attempt).
		Delete(&models.Link{})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to delete link %s: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *Repository) ListInFlightLinks(ctx context.Context) ([]models.Link, error) {
	var links []models.Link
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.LinkStatus{models.LinkSettling, models.LinkRefunding}).
		Order("pending_since ASC").
		Find(&links).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight links: %w", err)
	}
	return links, nil
}
