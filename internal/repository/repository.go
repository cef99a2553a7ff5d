package repository

import (
	"errors"

	"github.com/Fi44er/sol_gift/utils"
	"gorm.io/gorm"
)

var (
	ErrDuplicate       = errors.New("record already exists")
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyReserved = errors.New("claimer already reserved")
	ErrSupplyExhausted = errors.New("supply exhausted")
	ErrStaleSettlement = errors.New("settlement attempt no longer owns the record")
	ErrLeaseLost       = errors.New("provision lease is held by another runner")
)

type Repository struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewRepository(db *gorm.DB, logger *utils.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
