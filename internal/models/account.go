package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the simulated cash balance. Cash only moves inside the
// execution engine's commit transaction with the row locked.
type Account struct {
	ID           string `gorm:"primaryKey;type:varchar(50)"`
	BaseCurrency string `gorm:"type:varchar(10);not null;default:'USD'"`

	StartingCash decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	CurrentCash  decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	// Incremented on every balance write so readers can detect concurrent
	// mutation without comparing timestamps.
	Version int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
