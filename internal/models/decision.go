package models

import (
	"time"

	"gorm.io/datatypes"
)

// Decision is one strategy tick outcome (buy, sell, or hold) posted by the
// strategy layer. The drought detector counts these against executed orders.
type Decision struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyID string `gorm:"type:varchar(64);index"`
	Symbol     string `gorm:"type:varchar(30);index"`

	Action string `gorm:"type:varchar(10);not null;index"`
	Reason string `gorm:"type:text"`

	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Decision) TableName() string {
	return "decisions"
}
