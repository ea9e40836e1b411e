package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketPrice is the latest observed price per symbol, upserted by the
// market data collectors. The engine treats rows older than the configured
// max age as unavailable.
type MarketPrice struct {
	Symbol    string          `gorm:"primaryKey;type:varchar(30)"`
	Price     decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Source    string          `gorm:"type:varchar(30)"`
	TradeTS   *time.Time      `gorm:"type:timestamptz"`
	UpdatedAt time.Time       `gorm:"type:timestamptz;not null"`
}

func (MarketPrice) TableName() string {
	return "market_prices"
}
