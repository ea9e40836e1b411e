package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"evotrade/internal/engine"
	"evotrade/internal/marketdata"
	"evotrade/internal/models"
	"evotrade/internal/repository"
	"evotrade/internal/risk"
)

// Feature switches gating the cron jobs. Switches read elsewhere are
// declared next to their reader: trading gates in internal/engine, the
// drought override in internal/risk, collector switches in
// internal/marketdata.
const (
	FeatureFitness   = "feature.fitness"
	FeatureSnapshots = "feature.snapshots"
	FeatureDrought   = "feature.drought"
	FeatureArmSweep  = "feature.arm_sweep"
)

func DefaultSwitches() map[string]bool {
	return map[string]bool{
		FeatureFitness:                  true,
		FeatureSnapshots:                true,
		FeatureDrought:                  true,
		FeatureArmSweep:                 true,
		marketdata.SettingPollEnabled:   true,
		marketdata.SettingStreamEnabled: false,
		engine.SettingGovernorAutotrack: true,
	}
}

func DefaultStrings() map[string]string {
	return map[string]string{
		engine.SettingTradingMode:   models.ModePaper,
		engine.SettingTradingStatus: engine.TradingStatusRunning,
		risk.SettingDroughtOverride: "auto",
	}
}

// SystemSettingsService reads and writes operator-controlled runtime
// settings. Boot seeds the defaults without touching existing rows, so
// values set through the admin API survive restarts.
type SystemSettingsService struct {
	Repo repository.Repository
}

func (s *SystemSettingsService) EnsureDefaults(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultSwitches() {
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.InsertSystemSettingIfAbsent(ctx, item); err != nil {
			return err
		}
	}
	for key, value := range DefaultStrings() {
		raw, _ := json.Marshal(value)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "trading gate",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.InsertSystemSettingIfAbsent(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

func (s *SystemSettingsService) GetString(ctx context.Context, key, fallback string) string {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return fallback
	}
	return value
}

func (s *SystemSettingsService) SetString(ctx context.Context, key, value string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(value)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "trading gate",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}
