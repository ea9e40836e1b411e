package models

import "time"

// ArmSession authorizes a bounded number of live orders for a bounded time.
// Spending a slot is a conditional UPDATE on orders_executed inside the
// order commit transaction, so N concurrent orders can never overspend.
type ArmSession struct {
	ID   string `gorm:"primaryKey;type:varchar(64)"`
	Mode string `gorm:"type:varchar(10);not null;default:'live'"`

	MaxLiveOrders  int `gorm:"not null;default:1"`
	OrdersExecuted int `gorm:"not null;default:0"`

	ExpiresAt  time.Time  `gorm:"type:timestamptz;not null;index"`
	DisarmedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ArmSession) TableName() string {
	return "arm_sessions"
}
