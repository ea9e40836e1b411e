package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"evotrade/internal/models"
	"evotrade/internal/repository"
)

// SnapshotService writes the hourly equity curve. SnapshotAt is truncated
// to the hour so cron drift upserts the same row instead of stacking near
// duplicates.
type SnapshotService struct {
	Repo      repository.Repository
	Portfolio *PortfolioService
	Logger    *zap.Logger
	AccountID string
}

func (s *SnapshotService) Run(ctx context.Context, now time.Time) error {
	if s == nil || s.Repo == nil || s.Portfolio == nil {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	view, err := s.Portfolio.View(ctx, s.AccountID, now)
	if err != nil {
		return err
	}
	if view == nil {
		return nil
	}

	snap := &models.EquitySnapshot{
		AccountID:     s.AccountID,
		SnapshotAt:    now.UTC().Truncate(time.Hour),
		Cash:          view.Cash,
		PositionValue: view.PositionValue,
		Equity:        view.Equity,
		UnrealizedPnL: view.UnrealizedPnL,
		RealizedPnL:   view.RealizedPnL,
		OpenPositions: view.OpenPositions,
	}
	if err := s.Repo.InsertEquitySnapshot(ctx, snap); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Debug("snapshot: equity recorded",
			zap.String("account_id", s.AccountID),
			zap.String("equity", view.Equity.String()),
			zap.Int("open_positions", view.OpenPositions),
		)
	}
	return nil
}
