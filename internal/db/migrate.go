package db

import (
	"evotrade/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Account{},
		&models.MarketPrice{},
		&models.Order{},
		&models.Fill{},
		&models.Position{},
		&models.EquitySnapshot{},
		&models.Strategy{},
		&models.PerformanceRecord{},
		&models.Decision{},
		&models.LossReactionSession{},
		&models.ArmSession{},
		&models.DroughtState{},
		&models.SystemSetting{},
	)
}
