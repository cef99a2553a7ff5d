package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fi44er/sol_gift/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetUser(ctx context.Context, address string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "address = ?", address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", address, err)
	}
	return &user, nil
}

// EnsureUser creates the user on first sight; an existing row is left untouched.
func (r *Repository) EnsureUser(ctx context.Context, address string) (*models.User, error) {
	user := &models.User{Address: address}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", address, err)
	}
	return r.GetUser(ctx, address)
}

func (r *Repository) CreateNonce(ctx context.Context, nonce *models.AuthNonce) error {
	if err := r.db.WithContext(ctx).Create(nonce).Error; err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

// ConsumeNonce deletes an unexpired nonce and reports whether it existed.
func (r *Repository) ConsumeNonce(ctx context.Context, nonce string, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Where("nonce = ? AND expires_at > ?", nonce, now).
		Delete(&models.AuthNonce{})
	if tx.Error != nil {
		return false, fmt.Errorf("failed to consume nonce: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (r *Repository) PurgeExpiredNonces(ctx context.Context, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.AuthNonce{})
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to purge nonces: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}
