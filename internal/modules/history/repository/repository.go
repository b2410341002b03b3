package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"pharos.xyz/statschecker/internal/model"
)

type HistoryRepository interface {
	Create(ctx context.Context, check *model.WalletCheck) error
	ListByAddress(ctx context.Context, address string, limit int) ([]model.WalletCheck, error)
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Create(ctx context.Context, check *model.WalletCheck) error {
	return r.db.WithContext(ctx).Create(check).Error
}

func (r *historyRepository) ListByAddress(ctx context.Context, address string, limit int) ([]model.WalletCheck, error) {
	var checks []model.WalletCheck
	err := r.db.WithContext(ctx).
		Where("address = ?", strings.ToLower(address)).
		Order("checked_at DESC").
		Limit(limit).
		Find(&checks).Error
	if err != nil {
		return nil, err
	}
	return checks, nil
}
