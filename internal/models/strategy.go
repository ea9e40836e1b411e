package models

import (
	"time"

	"gorm.io/datatypes"
)

// Strategy is one member of the evolutionary population. The engine only
// scores strategies; selection and breeding happen in the external layer,
// which registers candidates here.
type Strategy struct {
	ID       string `gorm:"primaryKey;type:varchar(64)"`
	CohortID string `gorm:"type:varchar(64);index"`
	Name     string `gorm:"type:varchar(100);not null"`

	Status string `gorm:"type:varchar(20);not null;default:'candidate';index"`

	// Genome payload as produced by the evolution layer; opaque here.
	Params datatypes.JSON `gorm:"type:jsonb"`

	LatestFitness   *float64   `gorm:"type:numeric(20,10)"`
	LastEvaluatedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}
