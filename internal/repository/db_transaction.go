package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// inTransaction runs fn in one database transaction. Any error or panic from fn
// rolls it back; the error is returned unchanged so sentinels survive.
func (r *Repository) inTransaction(ctx context.Context, name string, fn func(tx *gorm.DB) error) (err error) {
	r.logger.Debugf("Starting %s transaction...", name)
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		r.logger.Errorf("Failed to start %s transaction: %v", name, tx.Error)
		return fmt.Errorf("failed to begin %s: %w", name, tx.Error)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback().Error
			panic(p)
		}
		if err != nil {
			r.logger.Debugf("Rolling back %s: %v", name, err)
			_ = tx.Rollback().Error
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit().Error; err != nil {
		r.logger.Errorf("Failed to commit %s: %v", name, err)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

// Ping checks that the database answers; used by readiness probes.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
