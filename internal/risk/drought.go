package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"evotrade/internal/config"
	"evotrade/internal/models"
	"evotrade/internal/repository"
)

// SettingDroughtOverride forces the detector on or off: "on", "off", or
// anything else for computed behavior.
const SettingDroughtOverride = "drought.override"

const droughtReasonOverride = "manual_override"

type WindowCounts struct {
	Holds  int64
	Orders int64
}

type DroughtEvaluation struct {
	Detected bool
	Reason   string
	Short    WindowCounts
	Long     WindowCounts
}

func windowTag(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return d.String()
}

// EvaluateDrought flags a window when its hold count exceeds the minimum
// while its filled-order count stays at or below the maximum. Both windows
// flagging together reads as a sustained drought.
func EvaluateDrought(cfg config.DroughtConfig, short, long WindowCounts) DroughtEvaluation {
	out := DroughtEvaluation{Short: short, Long: long}

	shortHit := cfg.ShortWindow > 0 &&
		short.Holds > int64(cfg.ShortMinHolds) &&
		short.Orders <= int64(cfg.ShortMaxOrders)
	longHit := cfg.LongWindow > 0 &&
		long.Holds > int64(cfg.LongMinHolds) &&
		long.Orders <= int64(cfg.LongMaxOrders)

	switch {
	case shortHit && longHit:
		out.Detected = true
		out.Reason = "sustained_drought"
	case shortHit:
		out.Detected = true
		out.Reason = "short_drought_" + windowTag(cfg.ShortWindow)
	case longHit:
		out.Detected = true
		out.Reason = "long_drought_" + windowTag(cfg.LongWindow)
	}
	return out
}

// DroughtDetector recomputes the advisory drought snapshot from decision and
// order history. Nothing in the order path blocks on it.
type DroughtDetector struct {
	Config config.DroughtConfig
	Repo   repository.Repository
	Logger *zap.Logger

	Settings interface {
		GetString(ctx context.Context, key, fallback string) string
	}
}

func (d *DroughtDetector) Run(ctx context.Context, now time.Time) (*models.DroughtState, error) {
	if d == nil || d.Repo == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	short, err := d.windowCounts(ctx, now, d.Config.ShortWindow)
	if err != nil {
		return nil, err
	}
	long, err := d.windowCounts(ctx, now, d.Config.LongWindow)
	if err != nil {
		return nil, err
	}

	eval := EvaluateDrought(d.Config, short, long)

	if d.Settings != nil {
		switch strings.ToLower(d.Settings.GetString(ctx, SettingDroughtOverride, "")) {
		case "on":
			eval.Detected = true
			eval.Reason = droughtReasonOverride
		case "off":
			eval.Detected = false
			eval.Reason = ""
		}
	}

	diag, _ := json.Marshal(map[string]map[string]int64{
		"short": {
			"holds":      short.Holds,
			"orders":     short.Orders,
			"min_holds":  int64(d.Config.ShortMinHolds),
			"max_orders": int64(d.Config.ShortMaxOrders),
		},
		"long": {
			"holds":      long.Holds,
			"orders":     long.Orders,
			"min_holds":  int64(d.Config.LongMinHolds),
			"max_orders": int64(d.Config.LongMaxOrders),
		},
	})

	prev, err := d.Repo.GetDroughtState(ctx)
	if err != nil {
		return nil, err
	}

	state := &models.DroughtState{
		ID:                1,
		Detected:          eval.Detected,
		Reason:            eval.Reason,
		ShortWindowHolds:  int(short.Holds),
		ShortWindowOrders: int(short.Orders),
		LongWindowHolds:   int(long.Holds),
		LongWindowOrders:  int(long.Orders),
		Diagnostics:       datatypes.JSON(diag),
		ComputedAt:        now.UTC(),
	}
	if err := d.Repo.UpsertDroughtState(ctx, state); err != nil {
		return nil, err
	}

	if d.Logger != nil && (prev == nil || prev.Detected != state.Detected) {
		d.Logger.Info("drought: state change",
			zap.Bool("detected", state.Detected),
			zap.String("reason", state.Reason),
			zap.Int64("short_holds", short.Holds),
			zap.Int64("short_orders", short.Orders),
			zap.Int64("long_holds", long.Holds),
			zap.Int64("long_orders", long.Orders),
		)
	}
	return state, nil
}

func (d *DroughtDetector) windowCounts(ctx context.Context, now time.Time, window time.Duration) (WindowCounts, error) {
	if window <= 0 {
		return WindowCounts{}, nil
	}
	since := now.Add(-window)
	holds, err := d.Repo.CountDecisionsByActionSince(ctx, "hold", since)
	if err != nil {
		return WindowCounts{}, err
	}
	orders, err := d.Repo.CountFilledOrdersSince(ctx, since)
	if err != nil {
		return WindowCounts{}, err
	}
	return WindowCounts{Holds: holds, Orders: orders}, nil
}
