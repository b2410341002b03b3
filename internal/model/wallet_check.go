package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WalletCheck is one archived successful wallet check.
type WalletCheck struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Address      string    `gorm:"size:42;not null;index:idx_wallet_checks_address_time,priority:1" json:"address"`
	TotalPoints  int64     `gorm:"not null" json:"total_points"`
	CurrentLevel int       `gorm:"not null" json:"current_level"`
	ExactRank    *int64    `json:"exact_rank"`
	TotalChecks  int64     `gorm:"default:0" json:"total_checks"`
	CheckedAt    time.Time `gorm:"not null;index:idx_wallet_checks_address_time,priority:2,sort:desc" json:"checked_at"`
}

func (WalletCheck) TableName() string {
	return "wallet_checks"
}

func (w *WalletCheck) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
