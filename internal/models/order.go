package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	OrderStatusFilled    = "filled"
	OrderStatusRejected  = "rejected"
	OrderStatusCancelled = "cancelled"

	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"

	ModePaper = "paper"
	ModeLive  = "live"
)

// Order is the full audit trail of the execution engine: every accepted
// intent lands here as filled, rejected, or cancelled. Terminal rows are
// never updated.
type Order struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ClientOrderID string `gorm:"type:varchar(64);not null;uniqueIndex"`
	AccountID     string `gorm:"type:varchar(50);not null;index"`
	StrategyID    string `gorm:"type:varchar(64);index"`
	CohortID      string `gorm:"type:varchar(64);index"`
	Symbol        string `gorm:"type:varchar(30);not null;index"`

	Side      string `gorm:"type:varchar(10);not null"`
	OrderType string `gorm:"type:varchar(20);not null;default:'market'"`
	Mode      string `gorm:"type:varchar(10);not null;default:'paper';index"`

	Quantity   decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	LimitPrice *decimal.Decimal `gorm:"type:numeric(20,10)"`

	Status string `gorm:"type:varchar(20);not null;index"`
	// RejectKind tags the rejection class (validation, risk, data_unavailable,
	// guard, canary) so dashboards can group without parsing reasons.
	RejectKind      string `gorm:"type:varchar(30)"`
	RejectionReason string `gorm:"type:text"`

	FillPrice    *decimal.Decimal `gorm:"type:numeric(20,10)"`
	FillQuantity *decimal.Decimal `gorm:"type:numeric(30,10)"`
	SlippagePct  *decimal.Decimal `gorm:"type:numeric(20,10)"`
	Fee          *decimal.Decimal `gorm:"type:numeric(30,10)"`

	Learnable    bool           `gorm:"not null;default:true;index"`
	Tags         datatypes.JSON `gorm:"type:jsonb"`
	ArmSessionID *string        `gorm:"type:varchar(64);index"`

	FilledAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}
