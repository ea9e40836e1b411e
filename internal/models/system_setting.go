package models

import (
	"time"

	"gorm.io/datatypes"
)

// SystemSetting is one operator-controlled runtime setting. Keys are
// namespaced dotted paths ("trading.mode", "feature.fitness",
// "drought.override"); the key is the row identity, there is no surrogate id.
type SystemSetting struct {
	Key string `gorm:"primaryKey;type:varchar(120)"`

	// JSON value: true/false for feature switches, a quoted string for
	// mode keys.
	Value datatypes.JSON `gorm:"type:jsonb;not null"`

	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"type:timestamptz;autoUpdateTime;index"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
