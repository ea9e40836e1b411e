package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is the immutable execution record, one per filled order. Strategy,
// side and learnable are denormalized from the order so the fitness replay
// reads a single table.
type Fill struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID    uint64 `gorm:"not null;uniqueIndex"`
	AccountID  string `gorm:"type:varchar(50);not null;index"`
	StrategyID string `gorm:"type:varchar(64);index"`
	Symbol     string `gorm:"type:varchar(30);not null;index"`
	Side       string `gorm:"type:varchar(10);not null"`
	Mode       string `gorm:"type:varchar(10);not null;default:'paper'"`

	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Fee      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	// Realized delta booked by this fill; zero on buys.
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	Learnable bool `gorm:"not null;default:true;index"`

	FilledAt  time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Fill) TableName() string {
	return "fills"
}
