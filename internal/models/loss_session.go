package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LossReactionSession is the governor's day-scoped state. One row per UTC
// trading day; writes go through a version check so concurrent trade
// completions cannot clobber each other.
type LossReactionSession struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	TradingDay string `gorm:"type:varchar(10);not null;uniqueIndex"`

	ConsecutiveLosses int        `gorm:"not null;default:0"`
	LastLossAt        *time.Time `gorm:"type:timestamptz"`
	CooldownUntil     *time.Time `gorm:"type:timestamptz"`

	SizeMultiplier decimal.Decimal `gorm:"type:numeric(10,4);not null;default:1"`

	DayStopped    bool   `gorm:"not null;default:false"`
	DayStopReason string `gorm:"type:text"`

	DayRealizedPnL decimal.Decimal `gorm:"column:day_realized_pnl;type:numeric(30,10);not null;default:0"`
	DayStartEquity decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	TradesToday    int             `gorm:"not null;default:0"`

	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (LossReactionSession) TableName() string {
	return "loss_sessions"
}
