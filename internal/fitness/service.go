package fitness

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"evotrade/internal/config"
	"evotrade/internal/models"
	"evotrade/internal/repository"
)

const replayPageSize = 500

// Service scores strategies from their fill history and persists the
// results. Safe to re-run: records upsert by (strategy, period).
type Service struct {
	Config    config.FitnessConfig
	Execution config.ExecutionConfig
	Logger    *zap.Logger

	Repo interface {
		DistinctFillStrategyIDs(ctx context.Context, since *time.Time) ([]string, error)
		ListStrategies(ctx context.Context) ([]models.Strategy, error)
		ListFills(ctx context.Context, params repository.ListFillsParams) ([]models.Fill, error)
		UpsertPerformanceRecord(ctx context.Context, item *models.PerformanceRecord) error
		UpdateStrategyFitness(ctx context.Context, id string, score float64, evaluatedAt time.Time) error
	}
}

// RunAll evaluates every strategy seen in the fill history plus every
// registered strategy, so an idle strategy still gets its zero-trade row.
// One strategy failing is logged and skipped; the batch continues.
func (s *Service) RunAll(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ids, err := s.Repo.DistinctFillStrategyIDs(ctx, s.lookbackSince(now))
	if err != nil {
		return 0, err
	}
	registered, err := s.Repo.ListStrategies(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, st := range registered {
		if _, ok := seen[st.ID]; ok {
			continue
		}
		seen[st.ID] = struct{}{}
		ids = append(ids, st.ID)
	}
	evaluated := 0
	for _, id := range ids {
		if _, err := s.EvaluateStrategy(ctx, id, now); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("fitness: strategy evaluation failed",
					zap.String("strategy_id", id),
					zap.Error(err),
				)
			}
			continue
		}
		evaluated++
	}
	return evaluated, nil
}

// EvaluateStrategy replays one strategy's fills and upserts its performance
// row for the current period.
func (s *Service) EvaluateStrategy(ctx context.Context, strategyID string, now time.Time) (*models.PerformanceRecord, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	trades, err := s.loadTrades(ctx, strategyID, s.lookbackSince(now))
	if err != nil {
		return nil, err
	}

	comps := Evaluate(s.Config, trades, decimal.NewFromFloat(s.Execution.StartingCash))

	raw, _ := json.Marshal(comps)
	rec := &models.PerformanceRecord{
		StrategyID:         strategyID,
		Period:             now.UTC().Format("2006-01-02"),
		FitnessScore:       comps.Score,
		NormPnL:            comps.NormPnL,
		Sharpe:             comps.Sharpe,
		NormSharpe:         comps.NormSharpe,
		MaxDrawdown:        comps.MaxDrawdown,
		ProfitableDays:     comps.ProfitableDays,
		OvertradingPenalty: comps.OvertradingPenalty,
		RealizedPnL:        comps.RealizedPnL,
		TotalFees:          comps.TotalFees,
		TradeCount:         comps.TradeCount,
		Components:         datatypes.JSON(raw),
		EvaluatedAt:        now.UTC(),
	}
	if err := s.Repo.UpsertPerformanceRecord(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateStrategyFitness(ctx, strategyID, comps.Score, now); err != nil && s.Logger != nil {
		s.Logger.Warn("fitness: latest score write failed",
			zap.String("strategy_id", strategyID),
			zap.Error(err),
		)
	}
	if s.Logger != nil {
		s.Logger.Info("fitness: strategy evaluated",
			zap.String("strategy_id", strategyID),
			zap.String("period", rec.Period),
			zap.Float64("score", comps.Score),
			zap.Int("trades", comps.TradeCount),
		)
	}
	return rec, nil
}

func (s *Service) lookbackSince(now time.Time) *time.Time {
	if s.Config.LookbackDays <= 0 {
		return nil
	}
	t := now.UTC().AddDate(0, 0, -s.Config.LookbackDays)
	return &t
}

func (s *Service) loadTrades(ctx context.Context, strategyID string, since *time.Time) ([]Trade, error) {
	asc := true
	var trades []Trade
	offset := 0
	for {
		fills, err := s.Repo.ListFills(ctx, repository.ListFillsParams{
			Limit:      replayPageSize,
			Offset:     offset,
			StrategyID: &strategyID,
			Since:      since,
			OrderBy:    "filled_at",
			Asc:        &asc,
		})
		if err != nil {
			return nil, err
		}
		for _, f := range fills {
			trades = append(trades, Trade{
				Symbol:    f.Symbol,
				Side:      f.Side,
				Quantity:  f.Quantity,
				Price:     f.Price,
				Fee:       f.Fee,
				Learnable: f.Learnable,
				FilledAt:  f.FilledAt,
			})
		}
		if len(fills) < replayPageSize {
			break
		}
		offset += replayPageSize
	}
	return trades, nil
}
