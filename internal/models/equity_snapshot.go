package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EquitySnapshot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	AccountID  string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_equity_snapshots_account_at"`
	SnapshotAt time.Time `gorm:"type:timestamptz;not null;uniqueIndex:idx_equity_snapshots_account_at"`

	Cash          decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	PositionValue decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Equity        decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null"`
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null"`
	OpenPositions int             `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (EquitySnapshot) TableName() string {
	return "equity_snapshots"
}
