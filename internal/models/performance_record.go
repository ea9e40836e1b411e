package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PerformanceRecord is one fitness evaluation of one strategy for one period.
// Records are append-only: re-evaluating the same period upserts the row,
// nothing ever deletes one.
type PerformanceRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_performance_strategy_period"`
	// Period is the UTC evaluation day, YYYY-MM-DD.
	Period string `gorm:"type:varchar(10);not null;uniqueIndex:idx_performance_strategy_period"`

	FitnessScore       float64 `gorm:"type:numeric(20,10);not null;default:0"`
	NormPnL            float64 `gorm:"column:norm_pnl;type:numeric(20,10);not null;default:0"`
	Sharpe             float64 `gorm:"type:numeric(20,10);not null;default:0"`
	NormSharpe         float64 `gorm:"type:numeric(20,10);not null;default:0"`
	MaxDrawdown        float64 `gorm:"type:numeric(20,10);not null;default:0"`
	ProfitableDays     float64 `gorm:"type:numeric(20,10);not null;default:0"`
	OvertradingPenalty float64 `gorm:"type:numeric(20,10);not null;default:0"`

	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`
	TotalFees   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TradeCount  int             `gorm:"not null;default:0"`

	// Full component breakdown as evaluated, for the dashboard.
	Components datatypes.JSON `gorm:"type:jsonb"`

	EvaluatedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PerformanceRecord) TableName() string {
	return "performance_records"
}
