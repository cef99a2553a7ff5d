package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/sol_gift/internal/models"
	"gorm.io/gorm"
)

func (r *Repository) CreateProvision(ctx context.Context, p *models.CollectionProvision) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create provision: %w", err)
	}
	return nil
}

func (r *Repository) GetProvision(ctx context.Context, id string) (*models.CollectionProvision, error) {
	var p models.CollectionProvision
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provision %s: %w", id, err)
	}
	return &p, nil
}

func (r *Repository) GetProvisionByTree(ctx context.Context, tree string) (*models.CollectionProvision, error) {
	var p models.CollectionProvision
	err := r.db.WithContext(ctx).Where("tree_address = ?", tree).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provision by tree: %w", err)
	}
	return &p, nil
}

// SaveProvision persists a checkpoint; it is called before and after every ledger submission.
// A provision carrying a runner is only written while that runner still holds the lease.
func (r *Repository) SaveProvision(ctx context.Context, p *models.CollectionProvision) error {
	if p.Runner == nil {
		if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
			return fmt.Errorf("failed to save provision %s: %w", p.ID, err)
		}
		return nil
	}

	tx := r.db.WithContext(ctx).
		Model(p).
		Where("runner = ?", *p.Runner).
		Select("*").
		Updates(p)
	if tx.Error != nil {
		return fmt.Errorf("failed to save provision %s: %w", p.ID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("provision %s: %w", p.ID, ErrLeaseLost)
	}
	return nil
}

// AcquireProvisionLease hands the provision to runner until the given time.
// It fails while another runner holds a lease that has not run out.
func (r *Repository) AcquireProvisionLease(ctx context.Context, id, runner string, now, until time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.CollectionProvision{}).
		Where("id = ? AND (lease_until IS NULL OR lease_until < ?)", id, now).
		Updates(map[string]interface{}{
			"runner":      runner,
			"lease_until": until,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to lease provision %s: %w", id, tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *Repository) ReleaseProvisionLease(ctx context.Context, id, runner string) error {
	err := r.db.WithContext(ctx).
		Model(&models.CollectionProvision{}).
		Where("id = ? AND runner = ?", id, runner).
		Updates(map[string]interface{}{
			"runner":      nil,
			"lease_until": nil,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to release lease on provision %s: %w", id, err)
	}
	return nil
}
