package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID string `gorm:"type:varchar(50);not null;uniqueIndex:idx_positions_account_symbol"`
	Symbol    string `gorm:"type:varchar(30);not null;uniqueIndex:idx_positions_account_symbol"`

	// Long-only book: quantity never goes negative. A fully closed position
	// keeps its row (status=closed) for audit, with quantity and cost zeroed.
	Quantity      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AvgEntryPrice decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	CostBasis     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	// Use explicit column names because default GORM naming turns "PnL" into "pn_l".
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	Status   string     `gorm:"type:varchar(20);not null;default:'open';index"`
	OpenedAt time.Time  `gorm:"type:timestamptz;not null"`
	ClosedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}
