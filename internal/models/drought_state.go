package models

import (
	"time"

	"gorm.io/datatypes"
)

// DroughtState is the latest detector snapshot. Singleton row, well-known
// ID 1, recomputed on every detector tick. Advisory only: nothing in the
// execution path reads it.
type DroughtState struct {
	ID uint64 `gorm:"primaryKey"`

	Detected bool   `gorm:"not null;default:false"`
	Reason   string `gorm:"type:varchar(40)"`

	ShortWindowHolds  int `gorm:"not null;default:0"`
	ShortWindowOrders int `gorm:"not null;default:0"`
	LongWindowHolds   int `gorm:"not null;default:0"`
	LongWindowOrders  int `gorm:"not null;default:0"`

	// Nearest-pass gate diagnostics for windows that did not flag.
	Diagnostics datatypes.JSON `gorm:"type:jsonb"`

	ComputedAt time.Time `gorm:"type:timestamptz;not null"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (DroughtState) TableName() string {
	return "drought_states"
}
